package api

import (
	"net/http"

	"github.com/ashureev/attention-labs/internal/domain"
	"github.com/go-chi/chi/v5"
)

// RequestPoll is the ad-hoc poll entry point.
func (h *Handler) RequestPoll(w http.ResponseWriter, r *http.Request) {
	h.requestManual(w, r, domain.PromptPoll)
}

// RequestRecap is the ad-hoc recap mark entry point.
func (h *Handler) RequestRecap(w http.ResponseWriter, r *http.Request) {
	h.requestManual(w, r, domain.PromptRecap)
}

// RequestPrompt activates a manual prompt of any type.
func (h *Handler) RequestPrompt(w http.ResponseWriter, r *http.Request) {
	pt, err := domain.ParsePromptType(chi.URLParam(r, "promptType"))
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	h.requestManual(w, r, pt)
}

// requestManual answers 201 with the new prompt, or 409 with the prompt
// that is already active.
func (h *Handler) requestManual(w http.ResponseWriter, r *http.Request, pt domain.PromptType) {
	m, ok := h.session(w, r)
	if !ok {
		return
	}
	prompt, activated, err := m.RequestManual(pt)
	if err != nil {
		writeEngagementError(w, err)
		return
	}
	if !activated {
		JSON(w, http.StatusConflict, map[string]interface{}{
			"error":         "prompt_already_active",
			"active_prompt": prompt,
		})
		return
	}
	JSON(w, http.StatusCreated, prompt)
}

// DismissPrompt clears the active prompt. Dismissing with nothing active
// is not an error.
func (h *Handler) DismissPrompt(w http.ResponseWriter, r *http.Request) {
	m, ok := h.session(w, r)
	if !ok {
		return
	}
	prompt, dismissed := m.Dismiss()
	resp := map[string]interface{}{"dismissed": dismissed}
	if dismissed {
		resp["prompt"] = prompt
	}
	JSON(w, http.StatusOK, resp)
}

type pollRequest struct {
	Value int `json:"value"`
}

// SubmitPoll records the answer to the active poll.
func (h *Handler) SubmitPoll(w http.ResponseWriter, r *http.Request) {
	m, ok := h.session(w, r)
	if !ok {
		return
	}
	var req pollRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	resp, err := m.SubmitPoll(req.Value)
	if err != nil {
		writeEngagementError(w, err)
		return
	}
	JSON(w, http.StatusOK, resp)
}

// ConfirmBreak confirms the active break prompt.
func (h *Handler) ConfirmBreak(w http.ResponseWriter, r *http.Request) {
	m, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := m.ConfirmBreak(); err != nil {
		writeEngagementError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"confirmed": true})
}

// ConfirmRecap confirms the active recap prompt and returns the new marker.
func (h *Handler) ConfirmRecap(w http.ResponseWriter, r *http.Request) {
	m, ok := h.session(w, r)
	if !ok {
		return
	}
	marker, err := m.ConfirmRecap()
	if err != nil {
		writeEngagementError(w, err)
		return
	}
	JSON(w, http.StatusOK, domain.MarkerView{
		SessionMarker: marker,
		Relative:      domain.FormatOffset(marker.Offset),
	})
}

type summaryRequest struct {
	Text string `json:"text"`
}

// SaveSummaryDraft stores the in-progress text of the active summary prompt.
func (h *Handler) SaveSummaryDraft(w http.ResponseWriter, r *http.Request) {
	m, ok := h.session(w, r)
	if !ok {
		return
	}
	var req summaryRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if err := m.SetSummaryDraft(req.Text); err != nil {
		writeEngagementError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type summarySubmitRequest struct {
	Text *string `json:"text"`
}

// SubmitSummary submits the active summary prompt. Blank text dismisses
// the prompt without recording a note; an omitted text submits the saved
// draft.
func (h *Handler) SubmitSummary(w http.ResponseWriter, r *http.Request) {
	m, ok := h.session(w, r)
	if !ok {
		return
	}
	var req summarySubmitRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	var (
		note     domain.SessionSummaryNote
		recorded bool
		err      error
	)
	if req.Text == nil {
		note, recorded, err = m.SubmitSummaryDraft()
	} else {
		note, recorded, err = m.SubmitSummary(*req.Text)
	}
	if err != nil {
		writeEngagementError(w, err)
		return
	}
	resp := map[string]interface{}{"recorded": recorded}
	if recorded {
		resp["note"] = domain.NoteView{
			SessionSummaryNote: note,
			Relative:           domain.FormatOffset(note.Offset),
		}
	}
	JSON(w, http.StatusOK, resp)
}
