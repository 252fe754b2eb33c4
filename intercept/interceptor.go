package intercept

import (
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// Request is an observed outgoing request.
type Request struct {
	URL          string
	Method       string
	ResourceType string
	Headers      http.Header
	Timestamp    time.Time
}

// Response is an observed response with its raw, possibly compressed, body.
type Response struct {
	URL       string
	Method    string
	Status    int
	Headers   http.Header
	Body      []byte
	Timestamp time.Time
}

// Interceptor wires page network events into a Store. OnRequest and
// OnResponse may be called from any goroutine.
type Interceptor struct {
	classifier *Classifier
	store      *Store

	observed       atomic.Int64
	classified     atomic.Int64
	decodeFailures atomic.Int64
	dropped        atomic.Int64
}

// New returns an Interceptor feeding store.
func New(classifier *Classifier, store *Store) *Interceptor {
	return &Interceptor{classifier: classifier, store: store}
}

// Store returns the payload store.
func (i *Interceptor) Store() *Store { return i.store }

// OnRequest counts an observed request.
func (i *Interceptor) OnRequest(r Request) {
	i.observed.Add(1)
	if i.classifier.Classify(r.URL) != ClassNone {
		i.classified.Add(1)
	}
}

// OnResponse classifies, decodes and stores r. Unclassified responses,
// and responses arriving while the store is sealed, return (nil, nil) and
// are dropped. Decode failures are recorded on the store and returned as
// *DecodeError.
func (i *Interceptor) OnResponse(r Response) (*Payload, error) {
	class := i.classifier.Classify(r.URL)
	if class == ClassNone {
		return nil, nil
	}
	if !i.store.Accepting() {
		i.drop(r.URL, class)
		return nil, nil
	}

	body, err := Decode(r.Headers, r.Body)
	if err != nil {
		var de *DecodeError
		if !errors.As(err, &de) {
			de = &DecodeError{Stage: StageJSON, Err: err}
		}
		de.URL = r.URL
		i.store.RecordFailure(de)
		i.decodeFailures.Add(1)
		slog.Debug("intercept: decode failed", "url", r.URL, "class", class.String(), "stage", string(de.Stage), "error", de.Err)
		return nil, de
	}

	ts := r.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	p := &Payload{
		Class:     class,
		URL:       r.URL,
		Method:    r.Method,
		Status:    r.Status,
		Headers:   r.Headers,
		Timestamp: ts,
		Body:      body,
	}
	old, ok := i.store.Put(p)
	if !ok {
		i.drop(r.URL, class)
		return nil, nil
	}
	if old != nil {
		slog.Debug("intercept: payload overwritten", "url", r.URL, "class", class.String(), "previous_at", old.Timestamp)
	}
	return p, nil
}

func (i *Interceptor) drop(url string, class Class) {
	i.dropped.Add(1)
	slog.Debug("intercept: response outside url window dropped", "url", url, "class", class.String())
}

// ObservedRequests is the session-wide number of requests seen.
func (i *Interceptor) ObservedRequests() int64 { return i.observed.Load() }

// ClassifiedRequests is the session-wide number of requests that matched a marker.
func (i *Interceptor) ClassifiedRequests() int64 { return i.classified.Load() }

// Dropped is the session-wide number of classified responses that arrived
// between URLs.
func (i *Interceptor) Dropped() int64 { return i.dropped.Load() }

// DecodeFailures is the session-wide number of undecodable responses.
func (i *Interceptor) DecodeFailures() int64 { return i.decodeFailures.Load() }
