package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/skip2/go-qrcode"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

const qrSize = 320

// Catalog lists the quizzes a host can start a game from.
type Catalog interface {
	ListQuizzes(ctx context.Context) ([]domain.QuizSummary, error)
}

// Rooms reports whether a PIN belongs to a live game.
type Rooms interface {
	Room(pin string) (*app.Room, bool)
}

type RouterConfig struct {
	// PublicURL is the base of the join link encoded in QR codes. When empty
	// it is derived from the request.
	PublicURL string
	Catalog   Catalog
}

// NewRouter mounts /healthz, /ws, /qr and /quizzes.
func NewRouter(registry *app.Registry, cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", NewWSHandler(registry).ServeWS)
	mux.Handle("/qr", qrHandler(registry, cfg.PublicURL))
	if cfg.Catalog != nil {
		mux.Handle("/quizzes", catalogHandler(cfg.Catalog))
	}
	return mux
}

// qrHandler renders a PNG QR code of the join link for a live game.
func qrHandler(rooms Rooms, publicURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pin := r.URL.Query().Get("pin")
		if !app.ValidPIN(pin) {
			http.Error(w, "invalid pin", http.StatusBadRequest)
			return
		}
		if _, ok := rooms.Room(pin); !ok {
			http.Error(w, "game not found", http.StatusNotFound)
			return
		}

		png, err := qrcode.Encode(joinURL(r, publicURL, pin), qrcode.Medium, qrSize)
		if err != nil {
			log.Printf("qr generation failed: %v", err)
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}
}

func joinURL(r *http.Request, publicURL, pin string) string {
	base := strings.TrimSuffix(publicURL, "/")
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}
		base = scheme + "://" + r.Host
	}
	return base + "/join?pin=" + url.QueryEscape(pin)
}

func catalogHandler(catalog Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		quizzes, err := catalog.ListQuizzes(r.Context())
		if err != nil {
			log.Printf("list quizzes: %v", err)
			http.Error(w, "could not list quizzes", http.StatusInternalServerError)
			return
		}
		if quizzes == nil {
			quizzes = []domain.QuizSummary{}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(quizzes)
	}
}
