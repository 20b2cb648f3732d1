package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

func CORS(allowedOrigins []string, log *zap.Logger) func(http.Handler) http.Handler {
	log.Info("cors allowed origins", zap.Strings("origins", allowedOrigins))

	// 空の場合はすべて許可（開発用）
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	return cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With", RequestIDHeader},
		ExposedHeaders:   []string{"Retry-After", RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
