package api

import (
	"net/http"

	"stormwatch/internal/types"
)

// TestMatchRequest is the body for POST /v1/subscriptions/test-match. It
// carries a candidate subscription definition and the violation event to
// evaluate it against, so users can preview gate decisions before saving.
type TestMatchRequest struct {
	ViolationEventID string `json:"violation_event_id" validate:"required"`

	Mode   types.SubscriptionMode   `json:"mode" validate:"required,oneof=POLYGON BUFFER JURISDICTION"`
	Params types.SubscriptionParams `json:"params"`

	MinRatio                float64 `json:"min_ratio,omitempty" validate:"gte=0"`
	RepeatOffenderThreshold int     `json:"repeat_offender_threshold,omitempty" validate:"gte=0"`
	ImpairedOnly            bool    `json:"impaired_only,omitempty"`
}

// TestMatchResponse pairs the decision with the event it was made against.
type TestMatchResponse struct {
	ViolationEventID string `json:"violation_event_id"`
	Matched          bool   `json:"matched"`
	Reason           string `json:"reason"`
}

// HandleTestMatch serves POST /v1/subscriptions/test-match. The candidate
// subscription is never persisted; the matcher runs the same gate order as
// the scheduled alert run and the response names the first failing gate.
func (s *Server) HandleTestMatch(w http.ResponseWriter, r *http.Request) {
	var req TestMatchRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, r, err)
		return
	}

	if err := s.validator.ValidateStruct(req); err != nil {
		Error(w, r, err)
		return
	}

	event, err := s.violations.GetEvent(r.Context(), req.ViolationEventID)
	if err != nil {
		Error(w, r, err)
		return
	}

	sub := &types.Subscription{
		Mode:                    req.Mode,
		Params:                  req.Params,
		MinRatio:                req.MinRatio,
		RepeatOffenderThreshold: req.RepeatOffenderThreshold,
		ImpairedOnly:            req.ImpairedOnly,
	}

	result := s.previewer.Matches(sub, event)

	JSON(w, r, http.StatusOK, APIResponse{Data: TestMatchResponse{
		ViolationEventID: event.ID,
		Matched:          result.Matched,
		Reason:           result.Reason,
	}})
}
