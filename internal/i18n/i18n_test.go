package i18n

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	loc := NewLocalizer(lang)
	return WithLocalizer(context.Background(), loc)
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "AppTitle")
	if got != "Focus Room" {
		t.Errorf("T(AppTitle) = %q, want 'Focus Room'", got)
	}

	got = T(ctx, "eval.correct")
	if got != "Correct!" {
		t.Errorf("T(eval.correct) = %q, want 'Correct!'", got)
	}
}

func TestTranslateHungarian(t *testing.T) {
	ctx := initLang(t, "hu")

	got := T(ctx, "AppTitle")
	if got != "Fókuszszoba" {
		t.Errorf("T(AppTitle) = %q, want 'Fókuszszoba'", got)
	}

	got = T(ctx, "hint.retry")
	if got != "Nem egészen, próbáld újra." {
		t.Errorf("T(hint.retry) = %q", got)
	}
}

func TestDefaultLanguageWithoutLocalizer(t *testing.T) {
	initLang(t, "hu")
	if DefaultLang() != "hu" {
		t.Fatalf("DefaultLang() = %q, want hu", DefaultLang())
	}
	got := T(context.Background(), "eval.correct")
	if got != "Helyes!" {
		t.Errorf("T(eval.correct) without localizer = %q, want 'Helyes!'", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got1 := Tp(ctx, "ItemsCompleted", 1)
	if got1 != "1 exercise completed." {
		t.Errorf("Tp(ItemsCompleted, 1) = %q, want '1 exercise completed.'", got1)
	}

	got5 := Tp(ctx, "ItemsCompleted", 5)
	if got5 != "5 exercises completed." {
		t.Errorf("Tp(ItemsCompleted, 5) = %q, want '5 exercises completed.'", got5)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	tests := []struct {
		id   string
		data map[string]any
		want string
	}{
		{"DayN", map[string]any{"Day": 3}, "Day 3"},
		{"summary.excellent", map[string]any{"Avg": 92}, "Excellent work today! Average score: 92."},
		{"eval.rejected", map[string]any{"Answer": "Jó reggelt"}, "Not quite. The correct answer: Jó reggelt"},
		{"eval.rejected", map[string]any{"Answer": ""}, "Not quite."},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got := Td(ctx, tt.id, tt.data)
			if got != tt.want {
				t.Errorf("Td(%s) = %q, want %q", tt.id, got, tt.want)
			}
		})
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "NonExistentKey")
	if got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestLocalesHaveSameKeys(t *testing.T) {
	load := func(name string) map[string]any {
		data, err := localeFS.ReadFile("locales/" + name)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("parse %s: %v", name, err)
		}
		return m
	}
	en, hu := load("en.json"), load("hu.json")
	for k := range en {
		if _, ok := hu[k]; !ok {
			t.Errorf("hu.json is missing %q", k)
		}
	}
	for k := range hu {
		if _, ok := en[k]; !ok {
			t.Errorf("en.json is missing %q", k)
		}
	}
}

func TestMiddlewareNegotiatesLanguage(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatal(err)
	}
	var got string
	h := Middleware("en")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = T(r.Context(), "eval.correct")
	}))

	tests := []struct {
		name   string
		url    string
		accept string
		want   string
	}{
		{"fallback", "/", "", "Correct!"},
		{"accept language", "/", "hu-HU,hu;q=0.9,en;q=0.5", "Helyes!"},
		{"query wins", "/?lang=en", "hu", "Correct!"},
		{"unsupported", "/", "fr-FR", "Correct!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.url, nil)
			if tt.accept != "" {
				req.Header.Set("Accept-Language", tt.accept)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
