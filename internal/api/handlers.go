package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/banshee-data/distance.report/internal/bias"
	"github.com/banshee-data/distance.report/internal/db"
	"github.com/banshee-data/distance.report/internal/geom"
	"github.com/banshee-data/distance.report/internal/homography"
	"github.com/banshee-data/distance.report/internal/montecarlo"
	"github.com/banshee-data/distance.report/internal/report"
	"github.com/banshee-data/distance.report/internal/uncertainty"
	"github.com/banshee-data/distance.report/internal/units"
)

// maxBodyBytes caps request bodies; line sets and validation histories are
// small, so anything larger is a client error.
const maxBodyBytes = 1 << 20

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return false
	}
	return true
}

// requestUnits resolves the output units for a request: the units query
// parameter when present, the server default otherwise.
func (s *Server) requestUnits(w http.ResponseWriter, r *http.Request) (string, bool) {
	u := r.URL.Query().Get("units")
	if u == "" {
		return s.units, true
	}
	if !units.IsValid(u) {
		s.writeJSONError(w, http.StatusBadRequest,
			fmt.Sprintf("invalid units %q; valid units are: %s", u, units.GetValidUnitsString()))
		return "", false
	}
	return u, true
}

func convertBudget(b uncertainty.Budget, target string) uncertainty.Budget {
	b.Measured = units.ConvertDistance(b.Measured, target)
	b.Corrected = units.ConvertDistance(b.Corrected, target)
	b.SigmaMC = units.ConvertDistance(b.SigmaMC, target)
	b.SigmaBias = units.ConvertDistance(b.SigmaBias, target)
	b.SigmaTotal = units.ConvertDistance(b.SigmaTotal, target)
	b.CI90 = units.ConvertDistance(b.CI90, target)
	b.CI95 = units.ConvertDistance(b.CI95, target)
	b.CI99 = units.ConvertDistance(b.CI99, target)
	return b
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		sessions, err := s.db.ListSessions()
		if err != nil {
			s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list sessions: %v", err))
			return
		}
		if sessions == nil {
			sessions = []db.Session{}
		}
		s.writeJSON(w, http.StatusOK, sessions)
	case http.MethodPost:
		var sess db.Session
		if !s.decodeJSON(w, r, &sess) {
			return
		}
		if sess.Name == "" {
			s.writeJSONError(w, http.StatusBadRequest, "name is required")
			return
		}
		if sess.LensK1 != 0 && sess.Diagonal <= 0 {
			s.writeJSONError(w, http.StatusBadRequest, "diagonal must be positive when lens_k1 is set")
			return
		}
		if err := s.db.CreateSession(&sess); err != nil {
			s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to create session: %v", err))
			return
		}
		s.writeJSON(w, http.StatusCreated, sess)
	default:
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	parts := strings.SplitN(rest, "/", 2)
	id := parts[0]
	if id == "" {
		s.writeJSONError(w, http.StatusBadRequest, "session id is required")
		return
	}

	sess, err := s.db.GetSession(id)
	if errors.Is(err, db.ErrNotFound) {
		s.writeJSONError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to load session: %v", err))
		return
	}

	if len(parts) == 1 {
		s.handleSession(w, r, sess)
		return
	}

	switch parts[1] {
	case "lines":
		s.handleLines(w, r, sess)
	case "validation":
		s.handleValidation(w, r, sess)
	case "calibrate":
		s.handleCalibrate(w, r, sess)
	case "measure":
		s.handleMeasure(w, r, sess)
	case "measurements":
		s.handleMeasurements(w, r, sess)
	case "report":
		s.handleReport(w, r, sess)
	default:
		s.writeJSONError(w, http.StatusNotFound, "unknown resource")
	}
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request, sess *db.Session) {
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, http.StatusOK, sess)
	case http.MethodDelete:
		if err := s.db.DeleteSession(sess.ID); err != nil {
			s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to delete session: %v", err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) handleLines(w http.ResponseWriter, r *http.Request, sess *db.Session) {
	switch r.Method {
	case http.MethodGet:
		lines, err := s.db.GetLines(sess.ID)
		if err != nil {
			s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to load lines: %v", err))
			return
		}
		if lines == nil {
			lines = []homography.Line{}
		}
		s.writeJSON(w, http.StatusOK, lines)
	case http.MethodPut:
		var lines []homography.Line
		if !s.decodeJSON(w, r, &lines) {
			return
		}
		if err := s.db.ReplaceLines(sess.ID, lines); err != nil {
			s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to store lines: %v", err))
			return
		}
		s.writeJSON(w, http.StatusOK, lines)
	default:
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) handleValidation(w http.ResponseWriter, r *http.Request, sess *db.Session) {
	switch r.Method {
	case http.MethodGet:
		entries, err := s.db.GetValidation(sess.ID)
		if err != nil {
			s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to load validation entries: %v", err))
			return
		}
		if entries == nil {
			entries = []bias.ValidationEntry{}
		}
		s.writeJSON(w, http.StatusOK, entries)
	case http.MethodPut:
		var entries []bias.ValidationEntry
		if !s.decodeJSON(w, r, &entries) {
			return
		}
		if err := s.db.ReplaceValidation(sess.ID, entries); err != nil {
			s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to store validation entries: %v", err))
			return
		}
		s.writeJSON(w, http.StatusOK, entries)
	default:
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// sessionOptions derives solver options for a session: tuning defaults with
// the session's lens model layered on top.
func (s *Server) sessionOptions(sess *db.Session) homography.Options {
	opts := homography.OptionsFromTuning(s.tuning)
	opts.K1 = sess.LensK1
	opts.Center = sess.Center()
	opts.Diagonal = sess.Diagonal
	return opts
}

type calibrateResponse struct {
	Homography *db.StoredHomography   `json:"homography"`
	Lines      []homography.LineError `json:"lines"`
}

func (s *Server) handleCalibrate(w http.ResponseWriter, r *http.Request, sess *db.Session) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	lines, err := s.db.GetLines(sess.ID)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to load lines: %v", err))
		return
	}

	res, err := homography.OptimizeFromLines(lines, s.sessionOptions(sess))
	if errors.Is(err, homography.ErrInsufficientLines) {
		s.writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("calibration failed: %v", err))
		return
	}

	stored, err := s.db.SaveHomography(sess.ID, res)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to save calibration: %v", err))
		return
	}

	s.writeJSON(w, http.StatusOK, calibrateResponse{Homography: stored, Lines: res.Lines})
}

type measureRequest struct {
	Label string     `json:"label"`
	A     geom.Point `json:"a"`
	B     geom.Point `json:"b"`
}

func (s *Server) handleMeasure(w http.ResponseWriter, r *http.Request, sess *db.Session) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	target, ok := s.requestUnits(w, r)
	if !ok {
		return
	}

	var req measureRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	stored, err := s.db.LatestHomography(sess.ID)
	if errors.Is(err, db.ErrNotFound) {
		s.writeJSONError(w, http.StatusConflict, "session has no calibration; calibrate first")
		return
	}
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to load calibration: %v", err))
		return
	}

	history, err := s.db.GetValidation(sess.ID)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to load validation entries: %v", err))
		return
	}

	m := s.measureSegment(sess, stored.Matrix, history, req.Label, req.A, req.B)
	if err := s.db.RecordMeasurement(m); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to record measurement: %v", err))
		return
	}

	out := *m
	out.Budget = convertBudget(out.Budget, target)
	s.writeJSON(w, http.StatusOK, out)
}

// measureSegment runs the full measurement pipeline on one pixel segment:
// undistorted projection for the point estimate, the Monte Carlo ensemble
// for the statistical sigma, and the validation kernel for local bias.
// All stored distances are metres.
func (s *Server) measureSegment(sess *db.Session, h geom.Homography, history []bias.ValidationEntry, label string, a, b geom.Point) *db.Measurement {
	ua := geom.Undistort(a, sess.LensK1, sess.Center(), sess.Diagonal)
	ub := geom.Undistort(b, sess.LensK1, sess.Center(), sess.Diagonal)
	measured := h.Apply(ua).Dist(h.Apply(ub))

	mc := montecarlo.Estimate(a, b, h, sess.LensK1, sess.Center(), sess.Diagonal,
		montecarlo.OptionsFromTuning(s.tuning))

	mid := geom.Point{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2}
	pred := bias.Predict(mid, history, bias.OptionsFromTuning(s.tuning))

	return &db.Measurement{
		SessionID: sess.ID,
		Label:     label,
		A:         a,
		B:         b,
		Budget:    uncertainty.Combine(measured, mc, pred),
	}
}

func (s *Server) handleMeasurements(w http.ResponseWriter, r *http.Request, sess *db.Session) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	target, ok := s.requestUnits(w, r)
	if !ok {
		return
	}

	ms, err := s.db.ListMeasurements(sess.ID)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list measurements: %v", err))
		return
	}
	for i := range ms {
		ms[i].Budget = convertBudget(ms[i].Budget, target)
	}
	if ms == nil {
		ms = []db.Measurement{}
	}
	s.writeJSON(w, http.StatusOK, ms)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request, sess *db.Session) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	stored, err := s.db.LatestHomography(sess.ID)
	if errors.Is(err, db.ErrNotFound) {
		s.writeJSONError(w, http.StatusConflict, "session has no calibration; calibrate first")
		return
	}
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to load calibration: %v", err))
		return
	}
	lines, err := s.db.GetLines(sess.ID)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to load lines: %v", err))
		return
	}
	entries, err := s.db.GetValidation(sess.ID)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to load validation entries: %v", err))
		return
	}
	ms, err := s.db.ListMeasurements(sess.ID)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list measurements: %v", err))
		return
	}

	data := &report.SessionData{
		Session:      sess,
		Homography:   stored,
		Lines:        lines,
		Validation:   entries,
		Measurements: ms,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := report.WriteHTML(w, data); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render report: %v", err))
		return
	}
}

type estimateRequest struct {
	Src []geom.Point `json:"src"`
	Dst []geom.Point `json:"dst"`
}

type estimateResponse struct {
	Matrix          geom.Homography `json:"matrix"`
	ConditionNumber float64         `json:"condition_number"`
}

// handleEstimate runs the exact DLT estimator on point correspondences,
// with nothing persisted. This is the four-points-known path; sessions with
// line references go through calibrate instead.
func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req estimateRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	h, err := homography.Estimate(req.Src, req.Dst)
	switch {
	case errors.Is(err, homography.ErrInsufficientPoints),
		errors.Is(err, homography.ErrMismatchedPoints),
		errors.Is(err, homography.ErrSingular):
		s.writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("estimation failed: %v", err))
		return
	}
	s.writeJSON(w, http.StatusOK, estimateResponse{Matrix: h, ConditionNumber: h.Cond()})
}
