package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/xelth-com/eckbackoffice/internal/models"
	"github.com/xelth-com/eckbackoffice/internal/services/access"
	"github.com/xelth-com/eckbackoffice/internal/utils"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type contextKey string

const (
	UserContextKey  contextKey = "user"
	ActorContextKey contextKey = "actor"
)

// Auth verifies bearer tokens and loads the caller
type Auth struct {
	secret string
	db     *gorm.DB
	log    *zap.Logger
}

// NewAuth creates the bearer token middleware
func NewAuth(secret string, db *gorm.DB, log *zap.Logger) *Auth {
	if log == nil {
		log = zap.NewNop()
	}
	return &Auth{secret: secret, db: db, log: log}
}

// Middleware verifies JWT tokens and puts the user and its actor in the context
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "Authorization header required")
			return
		}

		// Bearer token
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeError(w, http.StatusUnauthorized, "Invalid authorization header format")
			return
		}

		user, err := a.UserFromToken(r.Context(), parts[1])
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		ctx := WithUser(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserFromToken resolves an access token to an active user
func (a *Auth) UserFromToken(ctx context.Context, token string) (*models.User, error) {
	claims, err := utils.ValidateToken(token, a.secret)
	if err != nil {
		return nil, err
	}
	id, err := utils.AccessTokenUserID(claims)
	if err != nil {
		return nil, err
	}
	user, err := access.LoadUser(ctx, a.db, id)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		a.log.Info("token presented by inactive user", zap.Uint("user", user.ID))
		return nil, errors.New("user is inactive")
	}
	return user, nil
}

// WithUser stores the user and its actor in ctx
func WithUser(ctx context.Context, user *models.User) context.Context {
	ctx = context.WithValue(ctx, UserContextKey, user)
	return WithActor(ctx, access.ActorFor(user))
}

// WithActor stores an actor in ctx
func WithActor(ctx context.Context, actor access.Actor) context.Context {
	return context.WithValue(ctx, ActorContextKey, actor)
}

// UserFrom returns the authenticated user, if any
func UserFrom(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(UserContextKey).(*models.User)
	return user, ok
}

// ActorFrom returns the authenticated actor. Unauthenticated requests get an
// actor without permissions.
func ActorFrom(ctx context.Context) access.Actor {
	if actor, ok := ctx.Value(ActorContextKey).(access.Actor); ok {
		return actor
	}
	return access.Actor{Permissions: access.NewPermissions()}
}

// RequirePermission rejects callers lacking the capability token
func RequirePermission(token string) mux.MiddlewareFunc {
	return RequireAnyPermission(token)
}

// RequireAnyPermission lets the request through when the actor holds at least one of tokens
func RequireAnyPermission(tokens ...string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := ActorFrom(r.Context())
			for _, token := range tokens {
				if actor.Can(token) {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "Permission "+strings.Join(tokens, " or ")+" required")
		})
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
