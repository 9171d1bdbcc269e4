package voicevox

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const sampleQuery = `{
	"accent_phrases": [
		{
			"moras": [
				{"text": "コ", "consonant": "k", "consonant_length": 0.05, "vowel": "o", "vowel_length": 0.10},
				{"text": "ン", "consonant": null, "consonant_length": null, "vowel": "N", "vowel_length": 0.08}
			],
			"pause_mora": null
		}
	],
	"speedScale": 1.0
}`

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, NewClient(srv.URL, 5*time.Second)
}

func TestQuery(t *testing.T) {
	var gotText, gotSpeaker string
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio_query" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		gotText = r.URL.Query().Get("text")
		gotSpeaker = r.URL.Query().Get("speaker")
		w.Write([]byte(sampleQuery))
	})

	raw, err := c.Query(context.Background(), "こんにちは", 3)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if gotText != "こんにちは" {
		t.Errorf("text = %q, want こんにちは", gotText)
	}
	if gotSpeaker != "3" {
		t.Errorf("speaker = %q, want 3", gotSpeaker)
	}
	if len(raw) == 0 {
		t.Error("empty query response")
	}
}

func TestQueryValidation(t *testing.T) {
	c := NewClient("http://localhost:50021", time.Second)
	if _, err := c.Query(context.Background(), "", 1); err == nil {
		t.Error("expected error for empty text")
	}
	if _, err := c.Query(context.Background(), "あ", 0); err == nil {
		t.Error("expected error for invalid speaker ID")
	}
}

func TestTiming(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleQuery))
	})

	d, err := c.Timing(context.Background(), "こん", 1)
	if err != nil {
		t.Fatalf("Timing failed: %v", err)
	}
	if len(d.Phrases) != 1 || len(d.Phrases[0].Moras) != 2 {
		t.Fatalf("unexpected timing shape: %+v", d)
	}
	if got := d.Phrases[0].Moras[0].EndMs; got != 150 {
		t.Errorf("first mora end = %v, want 150", got)
	}
}

func TestTimingMalformedDegradesToEmpty(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"unexpected": true}`))
	})

	d, err := c.Timing(context.Background(), "こん", 1)
	if err != nil {
		t.Fatalf("Timing failed: %v", err)
	}
	if !d.Empty() {
		t.Errorf("expected empty timing for malformed response, got %+v", d)
	}
}

func TestSynthesize(t *testing.T) {
	wavBytes := []byte("RIFFfakewav")
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/audio_query":
			w.Write([]byte(sampleQuery))
		case "/synthesis":
			if ct := r.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("synthesis content type = %q", ct)
			}
			if r.URL.Query().Get("speaker") != "1" {
				t.Errorf("synthesis speaker = %q, want 1", r.URL.Query().Get("speaker"))
			}
			w.Write(wavBytes)
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
	})

	wav, d, err := c.Synthesize(context.Background(), "こん", 1)
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if string(wav) != string(wavBytes) {
		t.Errorf("wav = %q, want %q", wav, wavBytes)
	}
	if d.Empty() {
		t.Error("expected timing data from synthesis query")
	}
}

func TestSynthesizeServerError(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/audio_query" {
			w.Write([]byte(sampleQuery))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	})

	if _, _, err := c.Synthesize(context.Background(), "こん", 1); err == nil {
		t.Error("expected error for synthesis failure")
	}
}

func TestSpeakersFlattensStyles(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/speakers" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`[
			{"name": "四国めたん", "styles": [{"id": 2, "name": "ノーマル"}, {"id": 0, "name": "あまあま"}]},
			{"name": "ずんだもん", "styles": [{"id": 3, "name": "ノーマル"}]}
		]`))
	})

	speakers, err := c.Speakers(context.Background())
	if err != nil {
		t.Fatalf("Speakers failed: %v", err)
	}
	// id 0 被过滤
	if len(speakers) != 2 {
		t.Fatalf("got %d speakers, want 2", len(speakers))
	}
	if speakers[0].ID != 2 || speakers[0].Name != "四国めたん" {
		t.Errorf("unexpected first speaker: %+v", speakers[0])
	}
	if speakers[1].ID != 3 || speakers[1].Name != "ずんだもん" {
		t.Errorf("unexpected second speaker: %+v", speakers[1])
	}
}

func TestVersion(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`"0.14.5"`))
	})

	v, err := c.Version(context.Background())
	if err != nil {
		t.Fatalf("Version failed: %v", err)
	}
	if v != "0.14.5" {
		t.Errorf("version = %q, want 0.14.5", v)
	}
}

func TestCheckAvailability(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/version":
			w.Write([]byte(`"0.14.5"`))
		case "/speakers":
			w.Write([]byte(`[{"name": "a", "styles": [{"id": 1, "name": "n"}]}]`))
		}
	})

	st := c.CheckAvailability(context.Background())
	if !st.Available {
		t.Fatalf("expected available, got err=%s", st.Err)
	}
	if st.Version != "0.14.5" || st.SpeakerCount != 1 {
		t.Errorf("unexpected status: %+v", st)
	}
}

func TestCheckAvailabilityDown(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", 500*time.Millisecond)
	st := c.CheckAvailability(context.Background())
	if st.Available {
		t.Error("expected unavailable")
	}
	if st.Err == "" {
		t.Error("expected error message")
	}
}
