package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"basegraph.app/docwatch/common/logger"
	"basegraph.app/docwatch/internal/model"
)

const (
	larkTokenPath = "/open-apis/auth/v3/tenant_access_token/internal"
	larkMetasPath = "/open-apis/drive/v1/metas/batch_query"

	// Refresh the tenant token this long before it expires.
	larkTokenSkew = 5 * time.Minute
)

// failed_list codes returned by metas/batch_query.
const (
	larkCodeUnsupportedType = 970002
	larkCodeNoPermission    = 970003
	larkCodeNotFound        = 970005
)

// Top-level codes meaning the tenant access token is invalid or expired.
var larkTokenErrorCodes = map[int]bool{
	99991661: true,
	99991663: true,
	99991668: true,
}

var larkDocTypes = map[string]bool{
	"doc":      true,
	"docx":     true,
	"sheet":    true,
	"bitable":  true,
	"mindnote": true,
	"file":     true,
	"wiki":     true,
	"slides":   true,
}

type LarkConfig struct {
	BaseURL        string
	AppID          string
	AppSecret      string
	DefaultDocType string
}

// LarkSource reads document metadata from the Feishu/Lark drive API.
// Tokens are either a bare document token (DefaultDocType is assumed) or
// "<doc_type>:<doc_token>".
type LarkSource struct {
	cfg   LarkConfig
	http  *http.Client
	clock clockwork.Clock

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

func NewLarkSource(cfg LarkConfig, httpClient *http.Client, clock clockwork.Clock) *LarkSource {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.DefaultDocType == "" {
		cfg.DefaultDocType = "docx"
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	return &LarkSource{cfg: cfg, http: httpClient, clock: clock}
}

type larkRequestDoc struct {
	DocToken string `json:"doc_token"`
	DocType  string `json:"doc_type"`
}

type larkMetasRequest struct {
	RequestDocs []larkRequestDoc `json:"request_docs"`
	WithURL     bool             `json:"with_url"`
}

type larkMeta struct {
	DocToken         string `json:"doc_token"`
	DocType          string `json:"doc_type"`
	Title            string `json:"title"`
	OwnerID          string `json:"owner_id"`
	LatestModifyUser string `json:"latest_modify_user"`
	LatestModifyTime string `json:"latest_modify_time"`
	URL              string `json:"url"`
}

type larkFailed struct {
	Token string `json:"token"`
	Code  int    `json:"code"`
}

type larkMetasResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		Metas      []larkMeta   `json:"metas"`
		FailedList []larkFailed `json:"failed_list"`
	} `json:"data"`
}

type larkTokenResponse struct {
	Code              int    `json:"code"`
	Msg               string `json:"msg"`
	TenantAccessToken string `json:"tenant_access_token"`
	Expire            int    `json:"expire"`
}

func (s *LarkSource) Lookup(ctx context.Context, token string) (model.Metadata, error) {
	docType, docToken, err := s.parseToken(token)
	if err != nil {
		return model.Metadata{}, NewInvalidError(token, err)
	}

	accessToken, err := s.tenantToken(ctx)
	if err != nil {
		return model.Metadata{}, err
	}

	body, err := json.Marshal(larkMetasRequest{
		RequestDocs: []larkRequestDoc{{DocToken: docToken, DocType: docType}},
		WithURL:     true,
	})
	if err != nil {
		return model.Metadata{}, NewInvalidError(token, fmt.Errorf("encoding request: %w", err))
	}

	var resp larkMetasResponse
	status, err := s.do(ctx, larkMetasPath, accessToken, body, &resp)
	if err != nil {
		return model.Metadata{}, NewTransientError(token, err)
	}

	if status == http.StatusUnauthorized || larkTokenErrorCodes[resp.Code] {
		s.invalidateToken()
		return model.Metadata{}, &FetchError{Token: token, Class: ClassTransient, Status: status, Err: fmt.Errorf("tenant token rejected: %d %s", resp.Code, resp.Msg)}
	}
	if status != http.StatusOK {
		return model.Metadata{}, NewStatusError(token, status, fmt.Errorf("lark api: %d %s", resp.Code, resp.Msg))
	}
	if resp.Code != 0 {
		return model.Metadata{}, NewTransientError(token, fmt.Errorf("lark api: %d %s", resp.Code, resp.Msg))
	}

	for _, f := range resp.Data.FailedList {
		if f.Token == docToken {
			return model.Metadata{}, larkFailedError(token, f.Code)
		}
	}

	for _, m := range resp.Data.Metas {
		if m.DocToken != docToken {
			continue
		}
		modifiedAt, err := parseUnixSeconds(m.LatestModifyTime)
		if err != nil {
			return model.Metadata{}, NewTransientError(token, fmt.Errorf("parsing latest_modify_time %q: %w", m.LatestModifyTime, err))
		}
		return model.Metadata{
			Token:      token,
			Title:      m.Title,
			URL:        m.URL,
			ModifiedAt: modifiedAt,
			ModifiedBy: m.LatestModifyUser,
		}, nil
	}

	return model.Metadata{}, NewNotFoundError(token, errors.New("document missing from batch_query response"))
}

func (s *LarkSource) parseToken(token string) (string, string, error) {
	docType, docToken, found := strings.Cut(token, ":")
	if !found {
		docType, docToken = s.cfg.DefaultDocType, token
	}
	if !larkDocTypes[docType] {
		return "", "", fmt.Errorf("unsupported document type %q", docType)
	}
	if docToken == "" {
		return "", "", errors.New("empty document token")
	}
	return docType, docToken, nil
}

func larkFailedError(token string, code int) *FetchError {
	err := fmt.Errorf("lark failed_list code %d", code)
	switch code {
	case larkCodeNoPermission:
		return NewForbiddenError(token, err)
	case larkCodeUnsupportedType:
		return NewInvalidError(token, err)
	case larkCodeNotFound:
		return NewNotFoundError(token, err)
	default:
		return NewNotFoundError(token, err)
	}
}

func (s *LarkSource) tenantToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.accessToken != "" && s.clock.Now().Add(larkTokenSkew).Before(s.expiresAt) {
		return s.accessToken, nil
	}

	body, err := json.Marshal(map[string]string{
		"app_id":     s.cfg.AppID,
		"app_secret": s.cfg.AppSecret,
	})
	if err != nil {
		return "", NewTransientError("", fmt.Errorf("encoding token request: %w", err))
	}

	var resp larkTokenResponse
	status, err := s.do(ctx, larkTokenPath, "", body, &resp)
	if err != nil {
		return "", NewTransientError("", fmt.Errorf("requesting tenant token: %w", err))
	}
	if status != http.StatusOK || resp.Code != 0 {
		// Bad app credentials affect every document; never classify them as
		// a per-document permission problem.
		return "", &FetchError{Class: ClassTransient, Status: status, Err: fmt.Errorf("tenant token: %d %s", resp.Code, resp.Msg)}
	}

	s.accessToken = resp.TenantAccessToken
	s.expiresAt = s.clock.Now().Add(time.Duration(resp.Expire) * time.Second)
	return s.accessToken, nil
}

func (s *LarkSource) invalidateToken() {
	s.mu.Lock()
	s.accessToken = ""
	s.mu.Unlock()
}

func (s *LarkSource) do(ctx context.Context, path, bearer string, body []byte, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("calling %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("reading %s response: %w", path, err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil && resp.StatusCode == http.StatusOK {
			return resp.StatusCode, fmt.Errorf("decoding %s response %q: %w", path, logger.Truncate(string(raw), 200), err)
		}
	}
	return resp.StatusCode, nil
}

func parseUnixSeconds(s string) (time.Time, error) {
	sec, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, 0).UTC(), nil
}
