package authsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/publicsuffix"
)

const (
	PathWhoAmI          = "/api/auth/me"
	PathUserLogin       = "/api/auth/user/login"
	PathPartnerLogin    = "/api/auth/partner/login"
	PathUserRegister    = "/api/auth/user/register"
	PathPartnerRegister = "/api/auth/partner/register"
	PathUserLogout      = "/api/auth/user/logout"
	PathPartnerLogout   = "/api/auth/partner/logout"
	PathLogout          = "/api/auth/logout"

	// HeaderRequestID correlates client and server logs.
	HeaderRequestID = "X-Request-ID"

	tracerName = "github.com/foodly/authsync"
)

var _ Gateway = &HTTPGateway{}

// HTTPGateway implements Gateway over the marketplace REST API.
type HTTPGateway struct {
	baseURL string
	client  *http.Client
	hints   HintStore
	logger  Logger
	tracer  trace.Tracer
	newID   func() string
}

// HTTPGatewayOption customizes the HTTP gateway.
type HTTPGatewayOption func(*HTTPGateway)

// WithHTTPClient replaces the HTTP client. A client without a cookie jar
// gets one, the session cookie must always travel with the requests.
func WithHTTPClient(client *http.Client) HTTPGatewayOption {
	return func(g *HTTPGateway) {
		if client != nil {
			g.client = client
		}
	}
}

// WithTimeout sets the transport timeout.
func WithTimeout(timeout time.Duration) HTTPGatewayOption {
	return func(g *HTTPGateway) {
		if timeout > 0 {
			g.client.Timeout = timeout
		}
	}
}

// WithHintStore sets where the remembered partner email lives.
func WithHintStore(hints HintStore) HTTPGatewayOption {
	return func(g *HTTPGateway) {
		if hints != nil {
			g.hints = hints
		}
	}
}

// WithGatewayLogger sets the logger.
func WithGatewayLogger(logger Logger) HTTPGatewayOption {
	return func(g *HTTPGateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithTracerProvider sets the tracer provider, the global one is used by default.
func WithTracerProvider(tp trace.TracerProvider) HTTPGatewayOption {
	return func(g *HTTPGateway) {
		if tp != nil {
			g.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithRequestIDGenerator overrides how request ids are generated.
func WithRequestIDGenerator(fn func() string) HTTPGatewayOption {
	return func(g *HTTPGateway) {
		if fn != nil {
			g.newID = fn
		}
	}
}

// NewHTTPGateway creates a gateway talking to baseURL.
func NewHTTPGateway(baseURL string, opts ...HTTPGatewayOption) (*HTTPGateway, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, ErrValidation.Clone().WithMetadata(map[string]any{
			"field": "base_url",
		})
	}

	g := &HTTPGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		hints:   NewMemoryHints(),
		logger:  defLogger{},
		tracer:  otel.Tracer(tracerName),
		newID:   func() string { return uuid.NewString() },
	}

	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	if g.client.Jar == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
		g.client.Jar = jar
	}

	return g, nil
}

// Client exposes the underlying client, mostly to inspect the cookie jar.
func (g *HTTPGateway) Client() *http.Client {
	return g.client
}

func (g *HTTPGateway) Login(ctx context.Context, creds Credentials, role Role) (Envelope, error) {
	path := PathUserLogin
	if role == RolePartner {
		path = PathPartnerLogin
	}

	body, err := json.Marshal(creds)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode credentials: %w", err)
	}

	env, err := g.do(ctx, "login", role, http.MethodPost, path, "application/json", bytes.NewReader(body))
	if err != nil {
		return Envelope{}, err
	}

	if role == RolePartner {
		if err := g.hints.Set(ctx, HintPartnerEmail, creds.Email); err != nil {
			g.logger.Warn("unable to remember partner email: %v", err)
		}
	}

	return withRoleHint(env, role), nil
}

func (g *HTTPGateway) RegisterUser(ctx context.Context, payload UserRegistration) (Envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode registration: %w", err)
	}

	env, err := g.do(ctx, "register", RoleUser, http.MethodPost, PathUserRegister, "application/json", bytes.NewReader(body))
	if err != nil {
		return Envelope{}, err
	}
	return withRoleHint(env, RoleUser), nil
}

func (g *HTTPGateway) RegisterPartner(ctx context.Context, payload PartnerRegistration) (Envelope, error) {
	if payload.Avatar == nil || payload.Avatar.Content == nil {
		return Envelope{}, newFailure(ErrValidation, MessageMissingAvatar, nil, map[string]any{"field": "avatar"})
	}

	buf := &bytes.Buffer{}
	form := multipart.NewWriter(buf)
	fields := [][2]string{
		{"fullName", payload.FullName},
		{"contactName", payload.ContactName},
		{"phone", payload.Phone},
		{"email", payload.Email},
		{"password", payload.Password},
		{"address", payload.Address},
	}
	for _, field := range fields {
		if err := form.WriteField(field[0], field[1]); err != nil {
			return Envelope{}, fmt.Errorf("write field %s: %w", field[0], err)
		}
	}

	part, err := form.CreatePart(avatarHeader(payload.Avatar))
	if err != nil {
		return Envelope{}, fmt.Errorf("create avatar part: %w", err)
	}
	if _, err := io.Copy(part, payload.Avatar.Content); err != nil {
		return Envelope{}, fmt.Errorf("copy avatar: %w", err)
	}
	if err := form.Close(); err != nil {
		return Envelope{}, fmt.Errorf("close multipart form: %w", err)
	}

	env, err := g.do(ctx, "register", RolePartner, http.MethodPost, PathPartnerRegister, form.FormDataContentType(), buf)
	if err != nil {
		return Envelope{}, err
	}

	if err := g.hints.Set(ctx, HintPartnerEmail, payload.Email); err != nil {
		g.logger.Warn("unable to remember partner email: %v", err)
	}

	return withRoleHint(env, RolePartner), nil
}

func (g *HTTPGateway) Logout(ctx context.Context, role Role) error {
	path := PathLogout
	switch role {
	case RoleUser:
		path = PathUserLogout
	case RolePartner:
		path = PathPartnerLogout
	}

	if _, err := g.do(ctx, "logout", role, http.MethodPost, path, "application/json", strings.NewReader("{}")); err != nil {
		return err
	}

	if role != RoleUser {
		if err := g.hints.Delete(ctx, HintPartnerEmail); err != nil {
			g.logger.Warn("unable to forget partner email: %v", err)
		}
	}
	return nil
}

func (g *HTTPGateway) WhoAmI(ctx context.Context) (Envelope, error) {
	return g.do(ctx, "whoami", "", http.MethodGet, PathWhoAmI, "", nil)
}

func (g *HTTPGateway) do(ctx context.Context, op string, role Role, method, path, contentType string, body io.Reader) (Envelope, error) {
	requestID := g.newID()
	ctx, span := g.tracer.Start(ctx, "authsync."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("authsync.role", string(role)),
			attribute.String("http.request.method", method),
			attribute.String("url.path", path),
			attribute.String("authsync.request_id", requestID),
		),
	)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		span.RecordError(err)
		return Envelope{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(HeaderRequestID, requestID)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	g.logger.Debug("%s %s request_id=%s", method, path, requestID)

	resp, err := g.client.Do(req)
	if err != nil {
		failure := g.transportFailure(ctx, op, err)
		span.RecordError(failure)
		span.SetStatus(codes.Error, failure.Error())
		return Envelope{}, failure
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		failure := g.transportFailure(ctx, op, err)
		span.RecordError(failure)
		span.SetStatus(codes.Error, failure.Error())
		return Envelope{}, failure
	}

	var env Envelope
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil && resp.StatusCode < 300 {
			failure := newFailure(ErrTransport, "", err, map[string]any{
				"operation": op,
				"status":    resp.StatusCode,
				"reason":    "malformed response body",
			})
			span.RecordError(failure)
			span.SetStatus(codes.Error, failure.Error())
			return Envelope{}, failure
		}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return env, nil
	}

	failure := statusFailure(op, resp.StatusCode, env.Message)
	span.SetStatus(codes.Error, failure.Error())
	g.logger.Debug("%s %s failed status=%d request_id=%s", method, path, resp.StatusCode, requestID)
	return Envelope{}, failure
}

func (g *HTTPGateway) transportFailure(ctx context.Context, op string, err error) error {
	meta := map[string]any{"operation": op}
	if errors.Is(ctx.Err(), context.Canceled) || Classify(err) == FailureCancelled {
		return newFailure(ErrCancelled, "", err, meta)
	}
	return newFailure(ErrTransport, "", err, meta)
}

func statusFailure(op string, status int, message string) error {
	meta := map[string]any{
		"operation": op,
		"status":    status,
	}
	if message != "" {
		meta["message"] = message
	}

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return newFailure(ErrUnauthorized, "", nil, meta)
	case http.StatusRequestTimeout, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return newFailure(ErrTransport, "", nil, meta)
	default:
		return newFailure(ErrRejected, "", nil, meta)
	}
}

func withRoleHint(env Envelope, role Role) Envelope {
	if role != "" && env.AccountType == "" && env.Role == "" {
		env.AccountType = string(role)
	}
	return env
}

func avatarHeader(avatar *Avatar) textproto.MIMEHeader {
	filename := avatar.Filename
	if filename == "" {
		filename = "avatar"
	}
	contentType := avatar.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="avatar"; filename="%s"`, escapeQuotes(filename)))
	h.Set("Content-Type", contentType)
	return h
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
