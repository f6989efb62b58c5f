package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/linqiu/chefmate/pkg/embedding"
	"github.com/linqiu/chefmate/pkg/engine"
	"github.com/linqiu/chefmate/pkg/fridge"
	"github.com/linqiu/chefmate/pkg/logger"
	"github.com/linqiu/chefmate/pkg/preference"
	"github.com/linqiu/chefmate/pkg/providers"
	"github.com/linqiu/chefmate/pkg/recipe"
)

func newTestGateway(t *testing.T) *httptest.Server {
	t.Helper()
	embedder := embedding.New("chefmate-chargram-384-v1")
	index, err := recipe.NewIndex(embedder)
	if err != nil {
		t.Fatalf("new index: %v", err)
	}
	err = index.AddAll([]recipe.Recipe{
		{Name: "番茄炒蛋", Cuisine: "家常菜", Ingredients: []string{"鸡蛋", "番茄", "盐"}, Difficulty: "easy", CookingTime: 10},
		{Name: "清蒸鱼", Cuisine: "粤菜", Ingredients: []string{"鱼", "姜", "葱"}, Difficulty: "medium", CookingTime: 30},
	})
	if err != nil {
		t.Fatalf("load recipes: %v", err)
	}
	store, err := preference.NewSQLiteStore(t.TempDir()+"/prefs.db", embedder)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	e, err := engine.New(engine.Options{
		Index:       index,
		Preferences: store,
		Fridges:     fridge.NewRegistry(fridge.ModeFlexible),
		Generator:   &providers.MockGenerator{Reply: "推荐 番茄炒蛋"},
		Logger:      logger.Nop(),
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	server := httptest.NewServer(New(e, logger.Nop()).Handler())
	t.Cleanup(server.Close)
	return server
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestGateway(t)

	resp, err := http.Get(server.URL + "/health")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	var body map[string]any
	decodeBody(t, resp, &body)
	if body["status"] != "ok" {
		t.Fatalf("unexpected health body %v", body)
	}
}

func TestChatEndpoint(t *testing.T) {
	server := newTestGateway(t)

	resp := postJSON(t, server.URL+"/api/chat", map[string]string{
		"user_id": "u1",
		"message": "今晚吃什么",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	var body map[string]string
	decodeBody(t, resp, &body)
	if body["reply"] != "推荐 番茄炒蛋" {
		t.Fatalf("unexpected reply %q", body["reply"])
	}
}

func TestChatEndpoint_MissingUserIsBadRequest(t *testing.T) {
	server := newTestGateway(t)

	resp := postJSON(t, server.URL+"/api/chat", map[string]string{"message": "hi"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestPreferenceEndpoints(t *testing.T) {
	server := newTestGateway(t)

	resp, err := http.Get(server.URL + "/api/preference/u1")
	if err != nil {
		t.Fatalf("get preference: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for absent preference, got %d", resp.StatusCode)
	}

	resp = postJSON(t, server.URL+"/api/preference/u1", map[string]any{
		"cuisines":    []string{"川菜"},
		"spice_level": "hot",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status %d", resp.StatusCode)
	}
	var pref preference.Preference
	decodeBody(t, resp, &pref)
	if len(pref.Cuisines) != 1 || pref.Cuisines[0] != "川菜" || pref.SpiceLevel != "hot" {
		t.Fatalf("unexpected merged preference %+v", pref)
	}

	resp = postJSON(t, server.URL+"/api/preference/u1", map[string]any{"spice_level": "scorching"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad spice level, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodDelete, server.URL+"/api/preference/u1", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status %d", resp.StatusCode)
	}
}

func TestFridgeAndRecommendEndpoints(t *testing.T) {
	server := newTestGateway(t)

	resp := postJSON(t, server.URL+"/api/fridge", map[string]any{
		"user_id":     "u1",
		"action":      "add",
		"ingredients": []string{"鸡蛋", "番茄", "盐"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("fridge add status %d", resp.StatusCode)
	}
	var state engine.FridgeState
	decodeBody(t, resp, &state)
	if len(state.Ingredients) != 3 {
		t.Fatalf("unexpected fridge state %+v", state)
	}

	resp = postJSON(t, server.URL+"/api/recommend", map[string]string{
		"user_id": "u1",
		"query":   "番茄",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("recommend status %d", resp.StatusCode)
	}
	var body struct {
		Recommendations []engine.Recommendation `json:"recommendations"`
	}
	decodeBody(t, resp, &body)
	if len(body.Recommendations) == 0 {
		t.Fatalf("expected recommendations")
	}
	if body.Recommendations[0].Recipe.Name != "番茄炒蛋" {
		t.Fatalf("expected fully stocked recipe first, got %q", body.Recommendations[0].Recipe.Name)
	}
	if body.Recommendations[0].Compatibility.MatchRate != 1.0 {
		t.Fatalf("unexpected match rate %v", body.Recommendations[0].Compatibility.MatchRate)
	}

	resp = postJSON(t, server.URL+"/api/fridge", map[string]any{
		"user_id": "u1",
		"action":  "defrost",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown action, got %d", resp.StatusCode)
	}
}

func TestRecipeSearchEndpoint(t *testing.T) {
	server := newTestGateway(t)

	resp, err := http.Get(server.URL + "/api/recipes/search?q=鱼&k=5&cuisine=粤菜")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	var body struct {
		Recipes []recipe.Recipe `json:"recipes"`
	}
	decodeBody(t, resp, &body)
	if len(body.Recipes) != 1 || body.Recipes[0].Name != "清蒸鱼" {
		t.Fatalf("unexpected search result %+v", body.Recipes)
	}
}

func TestProfileAndSessionEndpoints(t *testing.T) {
	server := newTestGateway(t)

	resp := postJSON(t, server.URL+"/api/chat", map[string]string{"user_id": "u1", "message": "hi"})
	resp.Body.Close()

	resp, err := http.Get(server.URL + "/api/profile/u1")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	var profile engine.Profile
	decodeBody(t, resp, &profile)
	if profile.SessionTurns != 1 {
		t.Fatalf("expected 1 session turn, got %d", profile.SessionTurns)
	}

	resp = postJSON(t, server.URL+"/api/session/u1/clear", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("clear status %d", resp.StatusCode)
	}

	resp, err = http.Get(server.URL + "/api/profile/u1")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	decodeBody(t, resp, &profile)
	if profile.SessionTurns != 0 {
		t.Fatalf("session not cleared")
	}
}

func TestWebSocketStreamsFragments(t *testing.T) {
	server := newTestGateway(t)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/u1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]string{"message": "今晚吃什么"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	var fragments []string
	for {
		var frame wsOutbound
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatalf("read: %v", err)
		}
		switch frame.Type {
		case "fragment":
			fragments = append(fragments, frame.Content)
		case "done":
			if frame.Reply != "推荐番茄炒蛋" {
				t.Fatalf("unexpected assembled reply %q", frame.Reply)
			}
			if len(fragments) != 2 {
				t.Fatalf("expected 2 fragments, got %v", fragments)
			}
			return
		case "error":
			t.Fatalf("unexpected error frame: %s", frame.Error)
		}
	}
}
