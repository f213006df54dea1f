package exam

import (
	"net/http"
	"strings"

	"github.com/gokatarajesh/exam-engine/internal/server"
	httperrors "github.com/gokatarajesh/exam-engine/pkg/http/errors"
)

// HandleWebSocket upgrades the request and serves the candidate named by the
// candidate_id query parameter.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	candidateID := strings.TrimSpace(r.URL.Query().Get("candidate_id"))
	if candidateID == "" {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeMissingCandidate, "Missing candidate_id")
		return
	}

	conn, err := server.WSUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	h.HandleConnection(conn, candidateID)
}
