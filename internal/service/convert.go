package service

import (
	"sort"

	"veloskill/internal/strava"
	"veloskill/internal/store"
)

// convertActivity maps a listing summary, enriched by its detail when present, to a store record.
// Missing optional numbers stay nil.
func convertActivity(userID string, a strava.Activity, detail *strava.ActivityDetail) *store.Activity {
	sport := a.SportType
	if sport == "" {
		sport = a.Type
	}

	rec := &store.Activity{
		UserID:          userID,
		RemoteID:        a.ID,
		Name:            a.Name,
		SportType:       sport,
		StartDate:       a.StartDate.UTC(),
		StartDateLocal:  a.StartDateLocal,
		DistanceKm:      a.Distance / metersPerKm,
		ElevationM:      a.TotalElevationGain,
		DurationS:       a.MovingTime,
		AvgPowerW:       a.AverageWatts,
		MaxPowerW:       a.MaxWatts,
		AvgHeartrate:    a.AverageHeartrate,
		AvgCadence:      a.AverageCadence,
		Kilojoules:      a.Kilojoules,
		SummaryPolyline: a.Map.SummaryPolyline,
		Location:        a.LocationCity,
		Country:         a.LocationCountry,
		Trainer:         a.Trainer,
		Manual:          a.Manual,
		DeviceName:      a.DeviceName,
	}
	if a.AverageSpeed > 0 {
		kmh := a.AverageSpeed * msToKmh
		rec.AvgSpeedKmh = &kmh
	}

	if detail == nil {
		return rec
	}

	if detail.DeviceName != "" {
		rec.DeviceName = detail.DeviceName
	}
	if rec.SummaryPolyline == "" {
		rec.SummaryPolyline = detail.Map.SummaryPolyline
	}
	if rec.Country == "" {
		rec.Country = detail.LocationCountry
	}
	if rec.Location == "" {
		rec.Location = detail.LocationCity
	}
	if rec.AvgPowerW == nil {
		rec.AvgPowerW = detail.AverageWatts
	}
	if rec.MaxPowerW == nil {
		rec.MaxPowerW = detail.MaxWatts
	}
	if rec.Kilojoules == nil {
		rec.Kilojoules = detail.Kilojoules
	}
	if len(detail.Raw) > 0 {
		rec.RawDetail = string(detail.Raw)
	}
	return rec
}

// downsampleTrack keeps every stride-th sample of a GPS track.
// Streams without latlng produce no points.
func downsampleTrack(s *strava.Streams, stride int) []store.TrackPoint {
	n := s.Len()
	if n == 0 {
		return nil
	}
	if stride < 1 {
		stride = 1
	}

	points := make([]store.TrackPoint, 0, (n+stride-1)/stride)
	for i := 0; i < n; i += stride {
		ll := s.LatLng.Data[i]
		p := store.TrackPoint{
			Seq: i,
			Lat: ll[0],
			Lng: ll[1],
		}
		if s.Altitude != nil && i < len(s.Altitude.Data) {
			v := s.Altitude.Data[i]
			p.Altitude = &v
		}
		if s.Watts != nil && i < len(s.Watts.Data) {
			p.Watts = s.Watts.Data[i]
		}
		if s.Heartrate != nil && i < len(s.Heartrate.Data) {
			v := s.Heartrate.Data[i]
			p.Heartrate = &v
		}
		if s.Cadence != nil && i < len(s.Cadence.Data) {
			v := s.Cadence.Data[i]
			p.Cadence = &v
		}
		if s.Distance != nil && i < len(s.Distance.Data) {
			v := s.Distance.Data[i]
			p.DistanceM = &v
		}
		if s.Time != nil && i < len(s.Time.Data) {
			v := s.Time.Data[i]
			p.TimeS = &v
		}
		points = append(points, p)
	}
	return points
}

// bestSegmentEfforts keeps the fastest effort per segment, ordered by segment id
func bestSegmentEfforts(userID string, activityID int64, efforts []strava.SegmentEffort) []store.SegmentEffort {
	best := make(map[int64]strava.SegmentEffort)
	for _, e := range efforts {
		if e.Segment.ID == 0 {
			continue
		}
		cur, ok := best[e.Segment.ID]
		if !ok || e.ElapsedTime < cur.ElapsedTime {
			best[e.Segment.ID] = e
		}
	}

	out := make([]store.SegmentEffort, 0, len(best))
	for _, e := range best {
		seg := e.Segment
		rec := store.SegmentEffort{
			UserID:       userID,
			ActivityID:   activityID,
			SegmentID:    seg.ID,
			Name:         seg.Name,
			DistanceM:    ptr(seg.Distance),
			AverageGrade: ptr(seg.AverageGrade),
			ElapsedTime:  ptr(e.ElapsedTime),
		}
		if len(seg.StartLatLng) == 2 {
			rec.StartLat, rec.StartLng = ptr(seg.StartLatLng[0]), ptr(seg.StartLatLng[1])
		}
		if len(seg.EndLatLng) == 2 {
			rec.EndLat, rec.EndLng = ptr(seg.EndLatLng[0]), ptr(seg.EndLatLng[1])
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SegmentID < out[j].SegmentID })
	return out
}

func ptr[T any](v T) *T {
	return &v
}
