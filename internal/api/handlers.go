package api

import (
	"net/http"
)

func (s *Server) handleGetXP(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.Progression.GetOrComputeXP(r.Context(), session(r))
	if err != nil && view == nil {
		writeError(w, s.log, err)
		return
	}
	if err != nil {
		s.log.WithError(err).WithField("user_id", r.PathValue("user")).Warn("Global progress was not updated")
	}
	writeJSON(w, s.log, http.StatusOK, view)
}

func (s *Server) handleRecomputeXP(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.Progression.RecomputeXPNow(r.Context(), session(r))
	if err != nil && view == nil {
		writeError(w, s.log, err)
		return
	}
	if err != nil {
		s.log.WithError(err).WithField("user_id", r.PathValue("user")).Warn("Global progress was not updated")
	}
	writeJSON(w, s.log, http.StatusOK, view)
}

func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	gp, err := s.svc.Progression.GetGlobalProgress(r.Context(), session(r))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, s.log, http.StatusOK, gp)
}

func (s *Server) handleRunSync(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Sync.RunSync(r.Context(), session(r))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, s.log, http.StatusOK, res)
}

func (s *Server) handleLastSync(w http.ResponseWriter, r *http.Request) {
	res, ok, err := s.svc.Sync.LastResult(r.Context(), session(r))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	if !ok {
		writeJSON(w, s.log, http.StatusNotFound, ErrorResponse{
			Error: APIError{Code: "no_sync", Message: "no recent sync"},
		})
		return
	}
	writeJSON(w, s.log, http.StatusOK, res)
}

func (s *Server) handleGetChallenges(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.svc.Challenges.GetChallengeStatus(r.Context(), session(r))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, s.log, http.StatusOK, statuses)
}

func (s *Server) handleRefreshChallenges(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.Challenges.UpdateProgress(r.Context(), session(r))
	if err != nil && report == nil {
		writeError(w, s.log, err)
		return
	}
	if err != nil {
		s.log.WithError(err).WithField("user_id", r.PathValue("user")).Warn("Some challenges failed to update")
	}
	writeJSON(w, s.log, http.StatusOK, report)
}

func (s *Server) handleGetBadges(w http.ResponseWriter, r *http.Request) {
	badges, err := s.svc.Challenges.ListBadges(r.Context(), session(r))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, s.log, http.StatusOK, badges)
}

func (s *Server) handleGetMasteries(w http.ResponseWriter, r *http.Request) {
	views, err := s.svc.Masteries.List(r.Context(), session(r))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, s.log, http.StatusOK, views)
}

func (s *Server) handleRefreshMasteries(w http.ResponseWriter, r *http.Request) {
	raised, err := s.svc.Masteries.Refresh(r.Context(), session(r))
	if err != nil && raised == nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, s.log, http.StatusOK, map[string]any{"raised": raised})
}

// handleRefreshDashboard always answers 200 once the session is valid;
// failed steps are listed in the body
func (s *Server) handleRefreshDashboard(w http.ResponseWriter, r *http.Request) {
	dash, err := s.svc.Dashboard.Refresh(r.Context(), session(r))
	if dash == nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, s.log, http.StatusOK, dash)
}
