package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/iepscribe/internal/catalog"
	"github.com/MikeSquared-Agency/iepscribe/internal/hermes"
	"github.com/MikeSquared-Agency/iepscribe/internal/iep"
	"github.com/MikeSquared-Agency/iepscribe/internal/llm"
	"github.com/MikeSquared-Agency/iepscribe/internal/narrative"
	"github.com/MikeSquared-Agency/iepscribe/internal/pipeline"
	"github.com/MikeSquared-Agency/iepscribe/internal/progress"
	"github.com/MikeSquared-Agency/iepscribe/internal/weekly"
)

const (
	msgNoSessions = "No valid session data found in transcript. Try rephrasing or using manual form."
	msgNoStudents = "No students found for teacher"
)

type AnalyzeRequest struct {
	Transcript string `json:"transcript"`
}

type AnalyzeResponse struct {
	Sessions []pipeline.SuggestedSession `json:"sessions"`
	Count    int                         `json:"count"`
}

type InferRequest struct {
	Transcript  string    `json:"transcript"`
	Memo        string    `json:"memo"`
	StudentID   uuid.UUID `json:"student_id"`
	ObjectiveID uuid.UUID `json:"objective_id"`
}

type InferResponse struct {
	ObjectiveProgress progress.ObjectiveProgress `json:"objective_progress"`
}

type SummaryResponse struct {
	StudentID uuid.UUID `json:"student_id"`
	Summary   string    `json:"summary"`
	Fallback  bool      `json:"fallback"`
}

// analyzeTranscript handles POST /api/v1/transcripts/analyze
func (s *Server) analyzeTranscript(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Transcript) == "" {
		writeError(w, http.StatusBadRequest, "transcript is required")
		return
	}

	teacher := teacherID(r)
	sessions, err := s.Analyzer.ExtractAndResolve(r.Context(), req.Transcript, teacher)

	ev := hermes.TranscriptAnalyzed{
		RequestID: middleware.GetReqID(r.Context()),
		TeacherID: teacher.String(),
		Result:    pipeline.Result(err),
		Count:     len(sessions),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	s.publish(hermes.SubjectTranscriptAnalyzed, ev)

	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, AnalyzeResponse{Sessions: sessions, Count: len(sessions)})
	case errors.Is(err, pipeline.ErrNoSessions):
		writeError(w, http.StatusUnprocessableEntity, msgNoSessions)
	case errors.Is(err, pipeline.ErrEmptyCatalog):
		writeError(w, http.StatusUnprocessableEntity, msgNoStudents)
	default:
		s.Logger.Error("transcript analysis failed", "teacher_id", teacher, "error", err)
		writeError(w, http.StatusBadGateway, "Transcript analysis failed: "+analysisCause(err))
	}
}

// inferProgress handles POST /api/v1/progress/infer
func (s *Server) inferProgress(w http.ResponseWriter, r *http.Request) {
	var req InferRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Transcript) == "" && strings.TrimSpace(req.Memo) == "" {
		writeError(w, http.StatusBadRequest, "transcript or memo is required")
		return
	}
	if req.StudentID == uuid.Nil || req.ObjectiveID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "student_id and objective_id are required")
		return
	}

	ctx := r.Context()
	teacher := teacherID(r)

	student, err := s.Catalog.Student(ctx, teacher, req.StudentID)
	if err != nil {
		s.catalogError(w, err)
		return
	}
	objectives, err := s.Catalog.Objectives(ctx, teacher, req.StudentID)
	if err != nil {
		s.catalogError(w, err)
		return
	}

	for _, o := range objectives {
		if o.ID == req.ObjectiveID {
			p := s.Analyzer.InferProgress(ctx, req.Transcript, req.Memo, student, o)
			writeJSON(w, http.StatusOK, InferResponse{ObjectiveProgress: p})
			return
		}
	}
	writeError(w, http.StatusNotFound, "objective not found for student")
}

// summarizeStudent handles POST /api/v1/students/{studentID}/summary
func (s *Server) summarizeStudent(w http.ResponseWriter, r *http.Request) {
	studentID, err := uuid.Parse(chi.URLParam(r, "studentID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid student id")
		return
	}

	ctx := r.Context()
	teacher := teacherID(r)
	if _, err := s.Catalog.Student(ctx, teacher, studentID); err != nil {
		s.catalogError(w, err)
		return
	}

	summary := s.Narrative.Summarize(ctx, teacher, studentID)
	resp := SummaryResponse{
		StudentID: studentID,
		Summary:   summary,
		Fallback:  summary == narrative.FallbackSummary,
	}
	s.publish(hermes.SubjectSummaryUpdated, hermes.SummaryUpdated{
		TeacherID: teacher.String(),
		StudentID: studentID.String(),
		Summary:   resp.Summary,
		Fallback:  resp.Fallback,
	})
	writeJSON(w, http.StatusOK, resp)
}

// weeklySummary handles GET /api/v1/weekly-summary?week=this|last
func (s *Server) weeklySummary(w http.ResponseWriter, r *http.Request) {
	period, err := weekly.ParsePeriod(r.URL.Query().Get("week"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := s.Weekly.Summarize(r.Context(), teacherID(r), period)
	if err != nil {
		s.Logger.Error("weekly summary failed", "teacher_id", teacherID(r), "error", err)
		writeError(w, http.StatusInternalServerError, "weekly summary failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// parseIEP handles POST /api/v1/iep/parse. The body is the document's plain
// text; the structured preview is returned without being saved.
func (s *Server) parseIEP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "iep text too large")
		return
	}

	doc, err := s.IEP.Parse(r.Context(), string(body))
	var fe *llm.FormatError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, doc)
	case errors.Is(err, iep.ErrEmptyText):
		writeError(w, http.StatusBadRequest, "iep text is required")
	case errors.As(err, &fe):
		s.Logger.Error("iep parse returned malformed output", "teacher_id", teacherID(r), "error", err)
		writeError(w, http.StatusBadGateway, "IEP parse failed: model returned invalid JSON")
	default:
		s.Logger.Error("iep parse failed", "teacher_id", teacherID(r), "error", err)
		writeError(w, http.StatusBadGateway, "IEP parse failed")
	}
}

func (s *Server) catalogError(w http.ResponseWriter, err error) {
	if errors.Is(err, catalog.ErrNotFound) {
		writeError(w, http.StatusNotFound, "student not found")
		return
	}
	s.Logger.Error("catalog lookup failed", "error", err)
	writeError(w, http.StatusInternalServerError, "catalog lookup failed")
}

// analysisCause strips the ErrAnalysisFailed prefix from err's message.
func analysisCause(err error) string {
	msg := err.Error()
	if cause, ok := strings.CutPrefix(msg, pipeline.ErrAnalysisFailed.Error()+": "); ok {
		return cause
	}
	return msg
}
