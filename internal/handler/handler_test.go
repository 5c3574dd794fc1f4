package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/pavelanni/focusroom/internal/content"
	"github.com/pavelanni/focusroom/internal/i18n"
	"github.com/pavelanni/focusroom/internal/model"
	"github.com/pavelanni/focusroom/internal/session"
	"github.com/pavelanni/focusroom/internal/task"
)

func TestMain(m *testing.M) {
	if err := i18n.Init("en"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type staticLoader struct{ day session.DayContent }

func (l staticLoader) StartDay(context.Context, session.DayRequest) (session.DayContent, error) {
	return l.day, nil
}

type fixedEval struct{}

func (fixedEval) Evaluate(context.Context, task.EvalRequest) (task.EvalResult, error) {
	score := 90
	return task.EvalResult{Correct: true, Score: &score, Feedback: "Well done."}, nil
}

type fakeArchive struct {
	sessions map[string]*model.SessionExport
}

func (a fakeArchive) GetSessionArchive(id string) (*model.SessionExport, error) {
	exp, ok := a.sessions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return exp, nil
}

func (a fakeArchive) ListSessions(roomID string) ([]model.SessionRecord, error) {
	var out []model.SessionRecord
	for _, exp := range a.sessions {
		if roomID == "" || exp.Session.RoomID == roomID {
			out = append(out, exp.Session)
		}
	}
	return out, nil
}

func newTestServer(t *testing.T, archive Archive) (*httptest.Server, *session.Manager) {
	t.Helper()
	cfg := model.DefaultEngineConfig()
	cfg.TransitionDelay = 0
	cfg.Muted = true
	mgr := session.NewManager(cfg, session.Deps{
		Loader: staticLoader{day: session.DayContent{Tasks: []session.RawTask{
			{ID: "w1", Payload: content.Fallback(model.KindWriting).Map()},
			{ID: "t1", Payload: content.Fallback(model.KindTranslation).Map()},
		}}},
		Evaluator: fixedEval{},
		Text:      i18n.Td,
	})
	t.Cleanup(mgr.Shutdown)

	h, err := New(mgr, archive, http.NotFoundHandler(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r := chi.NewRouter()
	r.Use(i18n.Middleware("en"))
	r.Use(h.BasePathMiddleware)
	h.Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, mgr
}

func do(t *testing.T, method, url, body string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(data)
}

func decodeView(t *testing.T, body string) session.View {
	t.Helper()
	var v session.View
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		t.Fatalf("decode view %q: %v", body, err)
	}
	return v
}

// createSession creates a session and waits until it has loaded.
func createSession(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	code, body := do(t, "POST", srv.URL+"/sessions", `{"room_id":"room-1","day_index":1,"params":{"domain":"language"}}`)
	if code != http.StatusAccepted {
		t.Fatalf("create: status %d, body %s", code, body)
	}
	id := decodeView(t, body).ID
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_, body = do(t, "GET", srv.URL+"/sessions/"+id, "")
		if v := decodeView(t, body); !v.Loading && v.Phase != model.PhaseLoading {
			return id
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("session %s did not finish loading", id)
	return ""
}

func TestCreateValidation(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"missing room", `{"day_index":1}`},
		{"zero day", `{"room_id":"r","day_index":0}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _ := do(t, "POST", srv.URL+"/sessions", tt.body)
			if code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", code)
			}
		})
	}
}

func TestSessionFlow(t *testing.T) {
	srv, mgr := newTestServer(t, nil)
	id := createSession(t, srv)
	base := srv.URL + "/sessions/" + id

	_, body := do(t, "GET", base, "")
	v := decodeView(t, body)
	if v.Phase != model.PhaseTask || v.ItemsTotal != 2 {
		t.Fatalf("after load: phase %s, total %d", v.Phase, v.ItemsTotal)
	}

	code, body := do(t, "POST", base+"/answer", `{"text":"short"}`)
	if code != http.StatusUnprocessableEntity {
		t.Fatalf("short answer: status %d, want 422", code)
	}
	if !strings.Contains(body, content.RuleMinChars) {
		t.Errorf("gate body %s does not name the rule", body)
	}

	long := `{"text":"Ma reggel korán keltem, kávét ittam és elmentem sétálni a parkba a barátommal."}`
	code, body = do(t, "POST", base+"/answer", long)
	if code != http.StatusOK {
		t.Fatalf("answer: status %d, body %s", code, body)
	}
	var ar answerResponse
	if err := json.Unmarshal([]byte(body), &ar); err != nil {
		t.Fatalf("decode answer: %v", err)
	}
	if ar.Outcome.Verdict != task.VerdictAccepted || ar.View.Phase != model.PhaseEvaluate {
		t.Errorf("outcome %s in phase %s, want accepted in evaluate", ar.Outcome.Verdict, ar.View.Phase)
	}
	if ar.View.ScoreSum != 90 {
		t.Errorf("score sum = %d, want 90", ar.View.ScoreSum)
	}

	if code, _ := do(t, "POST", base+"/answer", long); code != http.StatusConflict {
		t.Errorf("answer in evaluate: status %d, want 409", code)
	}
	if code, _ := do(t, "POST", base+"/retry", ""); code != http.StatusConflict {
		t.Errorf("retry in evaluate: status %d, want 409", code)
	}

	code, body = do(t, "POST", base+"/advance", "")
	if code != http.StatusOK || decodeView(t, body).Phase != model.PhaseTask {
		t.Fatalf("advance: status %d, body %s", code, body)
	}

	code, body = do(t, "GET", base+"/transcript?format=md", "")
	if code != http.StatusOK || !strings.Contains(body, "> Ma reggel korán keltem") {
		t.Errorf("markdown transcript: status %d, body %s", code, body)
	}
	code, body = do(t, "GET", base+"/transcript", "")
	if code != http.StatusOK || !strings.Contains(body, "<title>Focus Room | Transcript</title>") {
		t.Errorf("html transcript: status %d, body %s", code, body)
	}

	if code, _ := do(t, "GET", base+"/audio", ""); code != http.StatusNotFound {
		t.Errorf("audio while muted: status %d, want 404", code)
	}

	if code, _ := do(t, "DELETE", base, ""); code != http.StatusNoContent {
		t.Errorf("delete: status %d, want 204", code)
	}
	if mgr.Len() != 0 {
		t.Errorf("manager still holds %d sessions", mgr.Len())
	}
	if code, _ := do(t, "GET", base, ""); code != http.StatusNotFound {
		t.Errorf("get after delete: status %d, want 404", code)
	}
}

func TestArchivedTranscript(t *testing.T) {
	score := 70
	archive := fakeArchive{sessions: map[string]*model.SessionExport{
		"old": {
			Session: model.SessionRecord{ID: "old", RoomID: "room-9", DayIndex: 4, Phase: model.PhaseEnd, ScoreSum: 70, ItemsCompleted: 1},
			Transcript: []model.TranscriptEntry{
				{Type: model.EntryUserAnswer, Content: "<b>szia</b>"},
				{Type: model.EntryEvaluation, Content: "Accepted.", Score: &score},
			},
		},
	}}
	srv, _ := newTestServer(t, archive)

	code, body := do(t, "GET", srv.URL+"/sessions/old/transcript", "")
	if code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	for _, want := range []string{"Day 4", "&lt;b&gt;szia&lt;/b&gt;", "1 exercise completed."} {
		if !strings.Contains(body, want) {
			t.Errorf("transcript missing %q", want)
		}
	}

	if code, _ := do(t, "GET", srv.URL+"/sessions/missing/transcript", ""); code != http.StatusNotFound {
		t.Errorf("missing transcript: status %d, want 404", code)
	}

	code, body = do(t, "GET", srv.URL+"/archive?room=room-9", "")
	if code != http.StatusOK || !strings.Contains(body, `"id":"old"`) {
		t.Errorf("archive list: status %d, body %s", code, body)
	}
}

func TestNormalize(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	code, body := do(t, "POST", srv.URL+"/normalize", `{"type":"quiz","content":{"question":"2+2?","choices":["3","4"],"answer":1}}`)
	if code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	var res content.Result
	if err := json.Unmarshal([]byte(body), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Item == nil || res.Item.Kind != model.KindQuiz {
		t.Errorf("normalized item = %+v, want a quiz", res.Item)
	}

	code, _ = do(t, "GET", srv.URL+"/healthz", "")
	if code != http.StatusOK {
		t.Errorf("healthz: status %d", code)
	}
}

func TestEventStream(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	id := createSession(t, srv)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/sessions/" + id + "/events"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	var first wsMessage
	if err := ws.ReadJSON(&first); err != nil {
		t.Fatalf("read view: %v", err)
	}
	if first.Type != "view" || first.View == nil || first.View.Phase != model.PhaseTask {
		t.Fatalf("first frame = %+v", first)
	}

	code, _ := do(t, "POST", srv.URL+"/sessions/"+id+"/answer",
		`{"text":"Ma reggel korán keltem, kávét ittam és elmentem sétálni a parkba a barátommal."}`)
	if code != http.StatusOK {
		t.Fatalf("answer: status %d", code)
	}

	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var sawOutcome bool
	for !sawOutcome {
		var m wsMessage
		if err := ws.ReadJSON(&m); err != nil {
			t.Fatalf("read event: %v", err)
		}
		if m.Event != nil && m.Event.Type == session.EventOutcome {
			sawOutcome = true
			if m.Event.Outcome.Verdict != task.VerdictAccepted {
				t.Errorf("verdict = %s", m.Event.Outcome.Verdict)
			}
		}
	}
}

func TestUnknownSession(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	for _, path := range []string{"/sessions/nope", "/sessions/nope/audio"} {
		if code, _ := do(t, "GET", srv.URL+path, ""); code != http.StatusNotFound {
			t.Errorf("GET %s: status %d, want 404", path, code)
		}
	}
	if code, _ := do(t, "POST", srv.URL+"/sessions/nope/advance", ""); code != http.StatusNotFound {
		t.Errorf("advance: status %d, want 404", code)
	}
}
