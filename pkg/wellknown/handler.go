package wellknown

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/tendant/edu-idm/pkg/jwks"
)

type Handler struct {
	metadata ProviderMetadata
	keys     *jwks.JWKSService
}

func NewHandler(config Config, keys *jwks.JWKSService) *Handler {
	return &Handler{
		metadata: NewProviderMetadata(config),
		keys:     keys,
	}
}

// OpenIDConfiguration handles GET /.well-known/openid-configuration
func (h *Handler) OpenIDConfiguration(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	render.JSON(w, r, h.metadata)
}

// JWKS handles GET /.well-known/jwks.json
func (h *Handler) JWKS(w http.ResponseWriter, r *http.Request) {
	set, err := h.keys.GetJWKS(r.Context())
	if err != nil {
		slog.Error("Failed to load JWKS", "err", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	render.JSON(w, r, set)
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/openid-configuration", h.OpenIDConfiguration)
	r.Get("/jwks.json", h.JWKS)
	return r
}
