package http

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"mllab/dataset"
	"mllab/db"
	"mllab/logging"
	"mllab/session"
)

// API serves the session lifecycle over REST.
type API struct {
	sessions *session.Manager
}

// NewAPI wires the handlers to a session manager.
func NewAPI(sessions *session.Manager) *API {
	return &API{sessions: sessions}
}

// Register attaches all routes to the mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", a.handleHealth)
	mux.HandleFunc("GET /api/runs", a.handleRuns)

	mux.HandleFunc("POST /api/sessions", a.handleCreateSession)
	mux.HandleFunc("GET /api/sessions/{id}", a.handleSessionStatus)
	mux.HandleFunc("DELETE /api/sessions/{id}", a.handleDeleteSession)

	mux.HandleFunc("POST /api/sessions/{id}/classes", a.handleAddClass)
	mux.HandleFunc("DELETE /api/sessions/{id}/classes/{name}", a.handleRemoveClass)

	mux.HandleFunc("POST /api/sessions/{id}/samples", a.handleSubmitSample)
	mux.HandleFunc("POST /api/sessions/{id}/dataset", a.handleIngestDataset)
	mux.HandleFunc("GET /api/sessions/{id}/dataset/schema", a.handleSchema)
	mux.HandleFunc("GET /api/sessions/{id}/dataset/preview", a.handlePreview)
	mux.HandleFunc("POST /api/sessions/{id}/target", a.handleSetTarget)

	mux.HandleFunc("POST /api/sessions/{id}/train", a.handleTrain)
	mux.HandleFunc("DELETE /api/sessions/{id}/train", a.handleCancelTrain)

	mux.HandleFunc("POST /api/sessions/{id}/predict", a.handlePredict)
	mux.HandleFunc("POST /api/sessions/{id}/predict/stream", a.handleStartStream)
	mux.HandleFunc("DELETE /api/sessions/{id}/predict/stream", a.handleStopStream)
	mux.HandleFunc("PUT /api/sessions/{id}/predict/live", a.handleSetLiveSample)

	mux.HandleFunc("POST /api/sessions/{id}/reset", a.handleReset)
}

// sampleRequest carries one raw sample in any of the three shapes. Kind is
// implied by the session mode; only the matching fields are read.
type sampleRequest struct {
	// image
	Class  string          `json:"class,omitempty"`
	Pixels [][]dataset.RGB `json:"pixels,omitempty"`
	// text
	Text  string `json:"text,omitempty"`
	Label string `json:"label,omitempty"`
	// tabular
	Row map[string]string `json:"row,omitempty"`
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]interface{}{
		"status":   "ok",
		"sessions": a.sessions.Len(),
		"time":     time.Now().Format(time.RFC3339),
	})
}

func (a *API) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	runs, err := db.QueryTrainingRuns(limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to query runs")
		return
	}
	respondJSON(w, map[string]interface{}{"runs": runs, "count": len(runs)})
}

func (a *API) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	sess, err := a.sessions.Create(dataset.Mode(req.Mode))
	if err != nil {
		respondSessionError(w, err)
		return
	}
	respondStatusJSON(w, http.StatusCreated, sess.Status())
}

func (a *API) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}
	respondJSON(w, sess.Status())
}

func (a *API) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	a.sessions.Remove(r.PathValue("id"))
	respondJSON(w, map[string]string{"status": "deleted"})
}

func (a *API) handleAddClass(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		respondError(w, http.StatusBadRequest, "class name required")
		return
	}
	if err := sess.AddClass(req.Name); err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, map[string]interface{}{"classes": sess.Classes()})
}

func (a *API) handleRemoveClass(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}
	if err := sess.RemoveClass(r.PathValue("name")); err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, map[string]interface{}{"classes": sess.Classes()})
}

func (a *API) handleSubmitSample(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}
	sample, label, errMsg := decodeSample(r, sess.Mode())
	if errMsg != "" {
		respondError(w, http.StatusBadRequest, errMsg)
		return
	}
	if err := sess.SubmitSample(sample, label); err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, map[string]interface{}{"sample_count": sess.SampleCount()})
}

func (a *API) handleIngestDataset(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}
	data, err := io.ReadAll(r.Body)
	if err != nil || len(data) == 0 {
		respondError(w, http.StatusBadRequest, "empty upload")
		return
	}
	report, err := sess.IngestCSV(data)
	if err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, report)
}

func (a *API) handleSchema(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}
	schema, err := sess.Schema()
	if err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, schema)
}

func (a *API) handlePreview(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}
	rows := 10
	if raw := r.URL.Query().Get("rows"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			rows = n
		}
	}
	preview, err := sess.PreviewRows(rows)
	if err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, preview)
}

func (a *API) handleSetTarget(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Column string `json:"column"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Column == "" {
		respondError(w, http.StatusBadRequest, "column required")
		return
	}
	if err := sess.SetTargetColumn(req.Column); err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, sess.Status())
}

func (a *API) handleTrain(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}
	var req struct {
		TargetColumn string `json:"target_column"`
		Task         string `json:"task"`
	}
	// An empty body means train with defaults.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	job, err := sess.StartTraining(session.TrainRequest{
		TargetColumn: req.TargetColumn,
		Task:         dataset.Task(req.Task),
	})
	if err != nil {
		respondSessionError(w, err)
		return
	}
	respondStatusJSON(w, http.StatusAccepted, map[string]interface{}{"run_id": job.RunID, "state": sess.State()})
}

func (a *API) handleCancelTrain(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}
	job := sess.CurrentJob()
	if job == nil {
		respondError(w, http.StatusConflict, "no training in progress")
		return
	}
	job.Cancel()
	respondJSON(w, map[string]string{"run_id": job.RunID, "status": "cancelling"})
}

func (a *API) handlePredict(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}
	sample, _, errMsg := decodeSample(r, sess.Mode())
	if errMsg != "" {
		respondError(w, http.StatusBadRequest, errMsg)
		return
	}
	pred, err := sess.Predict(sample)
	if err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, pred)
}

func (a *API) handleStartStream(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}
	var req struct {
		IntervalMS int `json:"interval_ms"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	interval := time.Duration(req.IntervalMS) * time.Millisecond
	if err := sess.StartPredictLoop(interval); err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "streaming"})
}

func (a *API) handleStopStream(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}
	sess.StopPredictLoop()
	respondJSON(w, map[string]string{"status": "stopped"})
}

func (a *API) handleSetLiveSample(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}
	sample, _, errMsg := decodeSample(r, sess.Mode())
	if errMsg != "" {
		respondError(w, http.StatusBadRequest, errMsg)
		return
	}
	sess.SetLiveSample(sample)
	respondJSON(w, map[string]string{"status": "live sample updated"})
}

func (a *API) handleReset(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.session(w, r)
	if !ok {
		return
	}
	var req struct {
		ClearSamples bool `json:"clear_samples"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := sess.Reset(req.ClearSamples); err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, sess.Status())
}

func (a *API) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := a.sessions.Get(r.PathValue("id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return sess, true
}

// decodeSample reads the request body into the sample shape the session
// mode expects. The returned message is empty on success.
func decodeSample(r *http.Request, mode dataset.Mode) (dataset.Sample, string, string) {
	var req sampleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, "", "invalid JSON body"
	}
	switch mode {
	case dataset.ModeImage:
		return dataset.ImageSample{Pixels: req.Pixels}, req.Class, ""
	case dataset.ModeText:
		return dataset.TextSample{Text: req.Text, Label: req.Label}, req.Label, ""
	case dataset.ModeTabular:
		return dataset.TabularRow{Values: req.Row}, "", ""
	default:
		return nil, "", "session has no mode selected"
	}
}

// respondSessionError maps the pipeline error taxonomy onto HTTP statuses.
// Input errors are the caller's payload, precondition errors are the
// caller's data, concurrency and state errors are the caller's timing.
func respondSessionError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch session.KindOf(err) {
	case session.InputError:
		status = http.StatusBadRequest
	case session.PreconditionError:
		status = http.StatusUnprocessableEntity
	case session.ConcurrencyError, session.StateError:
		status = http.StatusConflict
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(map[string]string{
		"error": session.ReasonOf(err),
		"kind":  string(session.KindOf(err)),
	}); encErr != nil {
		logging.L().Warnw("failed to encode error response", "err", encErr)
	}
}

func respondStatusJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.L().Warnw("failed to encode JSON response", "err", err)
	}
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.L().Warnw("failed to encode JSON response", "err", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		logging.L().Warnw("failed to encode error response", "err", err)
	}
}
