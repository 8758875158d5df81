package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/waypoint/pkg/contextkeys"
	"github.com/platinummonkey/waypoint/pkg/httputil"
	"github.com/platinummonkey/waypoint/pkg/rbac"
)

// ActorHeader carries the id of the already-authenticated caller
const ActorHeader = "X-Actor-ID"

// ActorDirectory resolves actor ids to users
type ActorDirectory interface {
	GetUser(id string) (*rbac.User, error)
}

// ActorMiddleware resolves the ActorHeader against the directory and puts
// the user id and department on the request context. Requests without the
// header pass through anonymous; an unknown actor is rejected with 401.
func ActorMiddleware(directory ActorDirectory, logger *logrus.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logrus.New()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := strings.TrimSpace(r.Header.Get(ActorHeader))
			if actor == "" {
				next.ServeHTTP(w, r)
				return
			}

			user, err := directory.GetUser(actor)
			if err != nil {
				if !errors.Is(err, rbac.ErrUserNotFound) {
					logger.WithError(err).WithField("user_id", actor).Error("actor lookup failed")
				}
				httputil.WriteUnauthorized(w, "unknown actor")
				return
			}

			ctx := contextkeys.WithUserID(r.Context(), user.ID)
			ctx = contextkeys.WithDepartment(ctx, string(user.Department))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
