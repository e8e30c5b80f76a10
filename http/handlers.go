package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"vaprisk/db"
	"vaprisk/ml"
	"vaprisk/monitoring"
	"vaprisk/risk"
)

// maxUploadBytes caps uploaded model artifacts.
const maxUploadBytes = 32 << 20

var (
	assessor  *risk.Assessor
	hub       *monitoring.WebSocketHub
	collector *monitoring.Collector
)

// Persistence hooks, overridable in tests.
var (
	saveAssessment = db.SaveAssessment
	saveModelEvent = db.SaveModelEvent
	queryHistory   = db.QueryAssessments
)

// SetAssessor injects the assessment pipeline.
func SetAssessor(a *risk.Assessor) { assessor = a }

// SetHub injects the websocket monitor hub.
func SetHub(h *monitoring.WebSocketHub) { hub = h }

// SetCollector injects the metrics collector.
func SetCollector(c *monitoring.Collector) { collector = c }

// RegisterHandlers wires all routes onto the mux.
func RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("GET /api/features", handleFeatures)
	mux.HandleFunc("POST /api/assess", handleAssess)
	mux.HandleFunc("POST /api/report", handleReport)
	mux.HandleFunc("POST /api/model", handleModelUpload)
	mux.HandleFunc("GET /api/model", handleModelInfo)
	mux.HandleFunc("GET /api/assessments", handleAssessments)
	mux.HandleFunc("GET /api/metrics", handleMetrics)
	mux.HandleFunc("GET /api/ws/monitor", handleMonitorWS)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// handleFeatures describes the input parameters so clients can build
// entry forms without hardcoding ranges.
func handleFeatures(w http.ResponseWriter, r *http.Request) {
	type parameter struct {
		Name    string  `json:"name"`
		Label   string  `json:"label"`
		Min     float64 `json:"min"`
		Max     float64 `json:"max"`
		Default float64 `json:"default"`
	}
	names := ml.FeatureNames()
	params := make([]parameter, 0, len(names))
	for _, name := range names {
		rng, ok := ml.RangeFor(name)
		if !ok {
			continue
		}
		params = append(params, parameter{
			Name:    name,
			Label:   ml.FeatureLabel(name),
			Min:     rng.Min,
			Max:     rng.Max,
			Default: rng.Default,
		})
	}
	respondJSON(w, map[string]interface{}{"features": params})
}

// parseFeatures decodes the request body over the documented defaults,
// so omitted fields keep their default values.
func parseFeatures(r *http.Request) (ml.PatientFeatures, error) {
	features := ml.DefaultFeatures()
	if err := json.NewDecoder(r.Body).Decode(&features); err != nil {
		return features, fmt.Errorf("invalid request body: %w", err)
	}
	if err := features.Validate(); err != nil {
		return features, err
	}
	return features, nil
}

func runAssessment(w http.ResponseWriter, r *http.Request) (*risk.Assessment, bool) {
	if assessor == nil {
		errorJSON(w, "service not ready", http.StatusServiceUnavailable)
		return nil, false
	}

	features, err := parseFeatures(r)
	if err != nil {
		errorJSON(w, err.Error(), http.StatusUnprocessableEntity)
		return nil, false
	}

	start := time.Now()
	assessment, err := assessor.Assess(r.Context(), features)
	if err != nil {
		if collector != nil {
			collector.RecordFailure()
		}
		var assessErr *risk.AssessmentError
		switch {
		case errors.Is(err, ml.ErrModelNotFound):
			errorJSON(w, "no model available - upload one via POST /api/model", http.StatusServiceUnavailable)
		case errors.As(err, &assessErr):
			// Surface the raw error text so the user can see what failed.
			errorJSON(w, assessErr.Error(), http.StatusInternalServerError)
		default:
			errorJSON(w, err.Error(), http.StatusInternalServerError)
		}
		return nil, false
	}

	if collector != nil {
		collector.RecordAssessment(string(assessment.RiskLevel), time.Since(start))
	}
	if hub != nil {
		hub.Publish(monitoring.AssessmentResult, assessment)
	}
	if err := saveAssessment(assessment); err != nil {
		// History is best-effort: the assessment itself already succeeded.
		errorLog(r, "save assessment", err)
	}
	return assessment, true
}

func handleAssess(w http.ResponseWriter, r *http.Request) {
	assessment, ok := runAssessment(w, r)
	if !ok {
		return
	}
	respondJSON(w, assessment)
}

func handleReport(w http.ResponseWriter, r *http.Request) {
	assessment, ok := runAssessment(w, r)
	if !ok {
		return
	}

	report := risk.BuildReport(assessment)
	filename := risk.ReportFilename(assessment)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	io.WriteString(w, report)
}

func handleModelUpload(w http.ResponseWriter, r *http.Request) {
	if assessor == nil {
		errorJSON(w, "service not ready", http.StatusServiceUnavailable)
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		errorJSON(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	file, _, err := r.FormFile("model")
	if err != nil {
		errorJSON(w, `missing "model" file field`, http.StatusBadRequest)
		return
	}
	defer file.Close()

	blob, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		errorJSON(w, "read upload: "+err.Error(), http.StatusBadRequest)
		return
	}

	model, err := assessor.Session().Upload(blob)
	if err != nil {
		var corrupt *ml.ModelCorruptError
		if errors.As(err, &corrupt) {
			errorJSON(w, corrupt.Error(), http.StatusBadRequest)
			return
		}
		errorJSON(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if collector != nil {
		collector.RecordModelReload()
	}
	if hub != nil {
		hub.Publish(monitoring.ModelEvent, model.Info)
	}
	if err := saveModelEvent("upload", model.Info); err != nil {
		errorLog(r, "save model event", err)
	}
	respondJSON(w, model.Info)
}

func handleModelInfo(w http.ResponseWriter, r *http.Request) {
	if assessor == nil {
		errorJSON(w, "service not ready", http.StatusServiceUnavailable)
		return
	}
	model, err := assessor.Session().Resolve()
	if err != nil {
		if errors.Is(err, ml.ErrModelNotFound) {
			errorJSON(w, err.Error(), http.StatusNotFound)
			return
		}
		errorJSON(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, model.Info)
}

func handleAssessments(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if l, err := strconv.Atoi(raw); err == nil {
			limit = l
		}
	}
	rows, err := queryHistory(limit)
	if err != nil {
		errorJSON(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, map[string]interface{}{"count": len(rows), "assessments": rows})
}

func handleMetrics(w http.ResponseWriter, r *http.Request) {
	if collector == nil {
		errorJSON(w, "metrics not enabled", http.StatusNotFound)
		return
	}
	respondJSON(w, collector.Snapshot())
}

func handleMonitorWS(w http.ResponseWriter, r *http.Request) {
	if hub == nil {
		errorJSON(w, "monitor not enabled", http.StatusNotFound)
		return
	}
	hub.HandleWebSocket(w, r)
}

func respondJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}

func errorJSON(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
