// auth.go — JWT middleware AirBIM: API /api/bim/* и страницы /bim/*.
// Токены проверяются по JWKS провайдера идентификации (RS256).
// Claim sub — владелец BIM-файлов: им ограничены список, информация и удаление.
// Отказы считаются в bim_auth_rejections_total по причине.
package middleware

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apierrors "github.com/ABASgroup/AirBIM/internal/api/errors"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

const (
	// ContextKeySubject — ключ для sub из JWT в контексте запроса.
	ContextKeySubject contextKey = "jwt_subject"
	// ContextKeyUsername — ключ для preferred_username из JWT.
	ContextKeyUsername contextKey = "jwt_username"
)

// Claims — структура JWT claims AirBIM.
type Claims struct {
	jwt.RegisteredClaims
	// PreferredUsername — отображаемое имя пользователя
	PreferredUsername string `json:"preferred_username,omitempty"`
}

// JWTAuth — middleware для JWT-аутентификации через JWKS.
type JWTAuth struct {
	jwks      keyfunc.Keyfunc
	jwtLeeway time.Duration
	logger    *slog.Logger
}

// JWTAuthConfig — параметры для создания JWT middleware.
type JWTAuthConfig struct {
	// URL JWKS endpoint
	JWKSURL string
	// Путь к CA-сертификату (опционально)
	CACertPath string
	// Пропускать проверку TLS-сертификатов
	TLSSkipVerify bool
	// Таймаут HTTP-клиента JWKS
	ClientTimeout time.Duration
	// Интервал обновления JWKS-ключей
	RefreshInterval time.Duration
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration
}

// NewJWTAuth создаёт JWT middleware с JWKS из указанного URL.
func NewJWTAuth(authCfg JWTAuthConfig, logger *slog.Logger) (*JWTAuth, error) {
	httpClient, err := buildHTTPClient(authCfg)
	if err != nil {
		return nil, err
	}

	if authCfg.CACertPath != "" {
		logger.Info("CA-сертификат добавлен в пул доверия",
			slog.String("ca_cert", authCfg.CACertPath),
		)
	}

	// NoErrorReturnFirstHTTPReq позволяет стартовать, пока JWKS endpoint ещё недоступен
	storage, err := jwkset.NewStorageFromHTTP(authCfg.JWKSURL, jwkset.HTTPClientStorageOptions{
		Client:                    httpClient,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           authCfg.RefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", authCfg.JWKSURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{
		Storage: storage,
	})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}

	return &JWTAuth{
		jwks:      k,
		jwtLeeway: authCfg.JWTLeeway,
		logger:    logger.With(slog.String("component", "jwt_auth")),
	}, nil
}

// buildHTTPClient создаёт HTTP-клиент с настроенным TLS и таймаутом.
func buildHTTPClient(authCfg JWTAuthConfig) (*http.Client, error) {
	tlsConfig := &tls.Config{
		InsecureSkipVerify: authCfg.TLSSkipVerify, //nolint:gosec // настраивается через BIM_JWKS_TLS_SKIP_VERIFY
	}

	if authCfg.CACertPath != "" {
		caCert, err := os.ReadFile(authCfg.CACertPath)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата %s: %w", authCfg.CACertPath, err)
		}

		caCertPool, err := x509.SystemCertPool()
		if err != nil {
			caCertPool = x509.NewCertPool()
		}
		caCertPool.AppendCertsFromPEM(caCert)
		tlsConfig.RootCAs = caCertPool
	}

	return &http.Client{
		Timeout: authCfg.ClientTimeout,
		Transport: &http.Transport{
			TLSClientConfig: tlsConfig,
		},
	}, nil
}

// NewJWTAuthWithKeyfunc создаёт JWT middleware с предоставленной keyfunc.
// Используется в тестах для подстановки JWKS.
func NewJWTAuthWithKeyfunc(kf keyfunc.Keyfunc, jwtLeeway time.Duration, logger *slog.Logger) *JWTAuth {
	return &JWTAuth{
		jwks:      kf,
		jwtLeeway: jwtLeeway,
		logger:    logger.With(slog.String("component", "jwt_auth")),
	}
}

// rejection — причина отказа в аутентификации (лейбл метрики и поле журнала).
type rejection string

const (
	rejectMissingHeader  rejection = "missing_header"
	rejectMalformed      rejection = "malformed_header"
	rejectInvalidToken   rejection = "invalid_token"
	rejectMissingSubject rejection = "missing_subject"
)

// rejectionMessages — тексты ответов 401 для клиента BIM.
var rejectionMessages = map[rejection]string{
	rejectMissingHeader:  "Authorization header is missing",
	rejectMalformed:      "Authorization header must be 'Bearer <token>'",
	rejectInvalidToken:   "Invalid or expired token",
	rejectMissingSubject: "Token has no subject",
}

var authRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bim_auth_rejections_total",
	Help: "Количество отклонённых запросов к API и страницам BIM (по причине).",
}, []string{"reason"})

// Middleware возвращает HTTP middleware для JWT-аутентификации.
// Токен — Bearer, подпись RS256, exp обязателен. sub становится владельцем
// BIM-файлов запроса и попадает в журнал запросов как owner_id.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, reason := j.authenticate(r)
			if reason != "" {
				authRejectionsTotal.WithLabelValues(string(reason)).Inc()
				AnnotateRequest(r.Context(), slog.String("auth_rejection", string(reason)))
				apierrors.Unauthorized(w, rejectionMessages[reason])
				return
			}

			AnnotateRequest(r.Context(), slog.String("owner_id", claims.Subject))

			ctx := context.WithValue(r.Context(), ContextKeySubject, claims.Subject)
			ctx = context.WithValue(ctx, ContextKeyUsername, claims.PreferredUsername)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// authenticate разбирает заголовок Authorization и проверяет токен.
// При отказе возвращает непустую причину.
func (j *JWTAuth) authenticate(r *http.Request) (*Claims, rejection) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, rejectMissingHeader
	}

	scheme, tokenString, found := strings.Cut(authHeader, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(tokenString) == "" {
		return nil, rejectMalformed
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, j.jwks.KeyfuncCtx(r.Context()),
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(j.jwtLeeway),
	)
	if err != nil || !token.Valid {
		if err != nil {
			j.logger.Debug("JWT валидация не пройдена",
				slog.String("error", err.Error()),
				slog.String("remote_addr", r.RemoteAddr),
			)
		}
		return nil, rejectInvalidToken
	}

	if claims.Subject == "" {
		return nil, rejectMissingSubject
	}
	return claims, ""
}

// SubjectFromContext извлекает sub из контекста запроса.
// Возвращает пустую строку, если sub не найден.
func SubjectFromContext(ctx context.Context) string {
	subject, _ := ctx.Value(ContextKeySubject).(string)
	return subject
}

// UsernameFromContext извлекает preferred_username, а при его отсутствии — sub.
func UsernameFromContext(ctx context.Context) string {
	if name, _ := ctx.Value(ContextKeyUsername).(string); name != "" {
		return name
	}
	return SubjectFromContext(ctx)
}

// WithSubject возвращает контекст с заданным sub.
// Используется в тестах handlers вместо полноценного JWT.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, ContextKeySubject, subject)
}
