package mailer

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nordmail/formsync/internal/metrics"
)

const (
	// DefaultBaseURL is the production mailer REST endpoint
	DefaultBaseURL = "https://rest.lianamailer.com"
	// DefaultRealm is the authorization realm used when none is configured
	DefaultRealm = "PV"

	defaultTimeout = 10 * time.Second
	contentType    = "application/json"

	// The mailer backend validates the Date header against timestamps
	// normalized to this zone. This is a protocol constraint of the
	// remote service, not a choice made here.
	signingTimeZone = "Europe/Helsinki"
)

// ErrUnauthorized indicates the mailer rejected the configured credentials
var ErrUnauthorized = errors.New("mailer: invalid API credentials")

// RemoteError is any non-success API response other than a credential
// rejection: a false succeed envelope, an unexpected status code, or a
// transport failure.
type RemoteError struct {
	Method  string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("mailer: %s: %s", e.Method, e.Message)
}

// Credentials identify one mailer API account
type Credentials struct {
	UserID     string
	SecretKey  string
	Realm      string
	BaseURL    string
	APIVersion int
}

// Rest is a signed client for the mailer REST API. Requests are
// authenticated with an HMAC-SHA256 signature over a canonical message
// that includes an MD5 content digest (a wire-compatibility requirement,
// not a security measure).
type Rest struct {
	creds      Credentials
	httpClient *http.Client
	loc        *time.Location
	now        func() time.Time
}

// NewRest creates a signed mailer API client
func NewRest(creds Credentials) *Rest {
	if creds.Realm == "" {
		creds.Realm = DefaultRealm
	}
	if creds.BaseURL == "" {
		creds.BaseURL = DefaultBaseURL
	}
	if creds.APIVersion < 1 || creds.APIVersion > 3 {
		creds.APIVersion = 1
	}
	creds.BaseURL = strings.TrimRight(creds.BaseURL, "/")

	loc, err := time.LoadLocation(signingTimeZone)
	if err != nil {
		// EET without DST; only reachable on systems without tzdata
		loc = time.FixedZone("EET", 2*60*60)
	}

	return &Rest{
		creds: creds,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		loc: loc,
		now: time.Now,
	}
}

// SetTimeout overrides the per-call HTTP timeout
func (r *Rest) SetTimeout(d time.Duration) {
	if d > 0 {
		r.httpClient.Timeout = d
	}
}

// Call invokes a mailer API method and returns the raw result field of a
// successful envelope. It fails with ErrUnauthorized on HTTP 401 and with
// *RemoteError on any other failure. There are no retries at this layer.
func (r *Rest) Call(ctx context.Context, method string, args any) (json.RawMessage, error) {
	result, err := r.call(ctx, method, args)
	metrics.IncRemoteCall(method, err != nil)
	return result, err
}

func (r *Rest) call(ctx context.Context, method string, args any) (json.RawMessage, error) {
	body, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("marshal args: %w", err)
	}

	path := "/api/v" + strconv.Itoa(r.creds.APIVersion) + "/" + method
	digest := md5hex(body)
	timestamp := r.now().In(r.loc).Format("2006-01-02T15:04:05-07:00")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.creds.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Content-MD5", digest)
	req.Header.Set("Date", timestamp)
	req.Header.Set("Authorization", r.creds.Realm+" "+r.creds.UserID+":"+r.sign(digest, timestamp, body, path))

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, &RemoteError{Method: method, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RemoteError{Method: method, Message: err.Error()}
	}

	// Some methods legitimately return an empty body
	if len(data) == 0 {
		return nil, nil
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &RemoteError{Method: method, Message: "malformed response: " + err.Error()}
	}
	if !env.Succeed {
		msg := env.Message
		if msg == "" {
			msg = "Record not found"
		}
		return nil, &RemoteError{Method: method, Message: msg}
	}

	return env.Result, nil
}

// sign computes the HMAC-SHA256 signature over the canonical message:
// method, content digest, content type, timestamp, body and path joined
// by newlines.
func (r *Rest) sign(digest, timestamp string, body []byte, path string) string {
	message := strings.Join([]string{
		http.MethodPost,
		digest,
		contentType,
		timestamp,
		string(body),
		path,
	}, "\n")

	mac := hmac.New(sha256.New, []byte(r.creds.SecretKey))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

func md5hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
