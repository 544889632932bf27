package http

import (
	"net/http"
	"strconv"

	"github.com/aussiebroadwan/consoleauth/internal/devauth/service"
	"github.com/aussiebroadwan/consoleauth/pkg/authsdk"
	"github.com/aussiebroadwan/consoleauth/pkg/authz"
	"github.com/aussiebroadwan/consoleauth/pkg/httpx"
	"github.com/aussiebroadwan/consoleauth/pkg/slogx"
)

type ChallengesHandler struct {
	ChallengeService *service.ChallengeService
	Evaluator        authz.Evaluator
}

// ServeHTTP lists challenges.
//
//	@Summary		List challenges
//	@Description	Requires the CHALLENGE_VIEW_ALL authority or the ADMIN role. Retired challenges are included for admins with ?all=true.
//	@Tags			Challenges
//	@Security		BearerAuth
//	@Produce		json
//	@Param			all	query		bool	false	"Include retired challenges (admin only)"
//	@Success		200	{object}	authsdk.ChallengeList
//	@Failure		401	{object}	authsdk.ErrorResponse	"MISSING_TOKEN, TOKEN_EXPIRED or INVALID_TOKEN"
//	@Failure		403	{object}	authsdk.ErrorResponse	"FORBIDDEN"
//	@Router			/api/challenges [get].
func (h *ChallengesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	includeRetired, _ := strconv.ParseBool(r.URL.Query().Get("all"))
	if includeRetired {
		claims, _ := httpx.ClaimsFromContext(ctx)
		subject := authz.Subject{Role: claims.Role, Authorities: claims.Authorities}
		includeRetired = h.Evaluator.Allows(authz.Admin, subject)
	}

	list, err := h.ChallengeService.List(ctx, includeRetired)
	if err != nil {
		slogx.FromContext(ctx).Error("failed to list challenges", "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	out := authsdk.ChallengeList{Challenges: make([]authsdk.Challenge, 0, len(list))}
	for _, c := range list {
		out.Challenges = append(out.Challenges, authsdk.Challenge{
			ID:          c.ID,
			Title:       c.Title,
			Description: c.Description,
			Reward:      c.Reward,
			Active:      c.Active,
		})
	}

	httpx.WriteJSON(w, http.StatusOK, out)
}
