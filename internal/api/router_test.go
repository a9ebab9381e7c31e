package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/sharesphere/spherecore/internal/api/auth"
	"github.com/sharesphere/spherecore/internal/apperr"
	"github.com/sharesphere/spherecore/internal/engine"
	"github.com/sharesphere/spherecore/internal/store/memory"
)

type testServer struct {
	t      *testing.T
	router *Router
	http   *gin.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	eng := engine.New(memory.New())
	router := NewRouter(eng, auth.NewVerifier("test-secret", "spherecore"))
	r := gin.New()
	router.SetupRoutes(r)
	return &testServer{t: t, router: router, http: r}
}

type rpcResult struct {
	Result map[string]interface{}
	List   []interface{}
	Error  *JSONRPCError
}

func (s *testServer) post(token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.http.ServeHTTP(w, req)
	return w
}

func (s *testServer) call(token, method string, params interface{}) rpcResult {
	s.t.Helper()
	raw, err := json.Marshal(params)
	if err != nil {
		s.t.Fatalf("marshal params: %v", err)
	}
	body := fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":%q,"params":%s}`, method, raw)
	w := s.post(token, body)
	if w.Code != http.StatusOK {
		s.t.Fatalf("%s: HTTP %d", method, w.Code)
	}

	var resp struct {
		Result json.RawMessage `json:"result"`
		Error  *JSONRPCError   `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		s.t.Fatalf("%s: decode response: %v", method, err)
	}
	out := rpcResult{Error: resp.Error}
	if len(resp.Result) > 0 && resp.Result[0] == '[' {
		_ = json.Unmarshal(resp.Result, &out.List)
	} else if len(resp.Result) > 0 {
		_ = json.Unmarshal(resp.Result, &out.Result)
	}
	return out
}

func (s *testServer) mustCall(token, method string, params interface{}) rpcResult {
	s.t.Helper()
	res := s.call(token, method, params)
	if res.Error != nil {
		s.t.Fatalf("%s: error %d %s (%v)", method, res.Error.Code, res.Error.Message, res.Error.Data)
	}
	return res
}

// signUp creates a user and returns its id and token
func (s *testServer) signUp(name string) (int64, string) {
	s.t.Helper()
	res := s.mustCall("", "user.create_user", map[string]interface{}{
		"subject":  "oidc|" + name,
		"username": name,
		"email":    name + "@example.com",
	})
	token, _ := res.Result["token"].(string)
	if token == "" {
		s.t.Fatalf("create_user returned no token: %v", res.Result)
	}
	return int64(res.Result["user_id"].(float64)), token
}

func intOf(v interface{}) int64 {
	f, _ := v.(float64)
	return int64(f)
}

func TestErrorDataHidesInternalErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewJSONRPCHandler()
	h.RegisterMethod("test.driver_failure", func(*gin.Context, json.RawMessage) (interface{}, error) {
		return nil, fmt.Errorf("load post: %w", errors.New("pq: password authentication failed for user \"sphere\""))
	})
	h.RegisterMethod("test.wrapped_failure", func(*gin.Context, json.RawMessage) (interface{}, error) {
		return nil, apperr.Wrap(apperr.KindInternal, errors.New("dial tcp 10.0.0.7:5432: connect: connection refused"), "store unavailable")
	})
	h.RegisterMethod("test.bad_input", func(*gin.Context, json.RawMessage) (interface{}, error) {
		return nil, apperr.Validationf("title is required")
	})
	r := gin.New()
	r.POST("/", h.Handle)

	tests := []struct {
		method   string
		wantCode int
		wantData string
	}{
		{"test.driver_failure", ErrServerError, ""},
		{"test.wrapped_failure", ErrServerError, ""},
		{"test.bad_input", ErrInvalidParams, "title is required"},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(
				fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":%q}`, tt.method)))
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			var resp JSONRPCResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Error == nil || resp.Error.Code != tt.wantCode {
				t.Fatalf("error = %+v, want code %d", resp.Error, tt.wantCode)
			}
			if tt.wantData == "" {
				if resp.Error.Data != nil {
					t.Errorf("data = %v, internal error text must not reach the caller", resp.Error.Data)
				}
				return
			}
			if data, _ := resp.Error.Data.(string); !strings.Contains(data, tt.wantData) {
				t.Errorf("data = %v, want it to contain %q", resp.Error.Data, tt.wantData)
			}
		})
	}
}

func TestProtocolErrors(t *testing.T) {
	s := newTestServer(t)
	tests := []struct {
		name string
		body string
		want int
	}{
		{"parse error", `{"jsonrpc":`, ErrParseError},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"user.get_user"}`, ErrInvalidRequest},
		{"unknown method", `{"jsonrpc":"2.0","id":1,"method":"condenser_api.get_state"}`, ErrMethodNotFound},
		{"params not an object", `{"jsonrpc":"2.0","id":1,"method":"content.get_post","params":[1]}`, ErrInvalidParams},
		{"missing parameter", `{"jsonrpc":"2.0","id":1,"method":"content.get_post","params":{}}`, ErrInvalidParams},
		{"anonymous write", `{"jsonrpc":"2.0","id":1,"method":"sphere.create_sphere","params":{"name":"go"}}`, ErrUnauthorized},
		{"empty batch", `[]`, ErrInvalidRequest},
		{"broken batch", `[{"jsonrpc":"2.0"`, ErrParseError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.post("", tt.body)
			var resp JSONRPCResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Error == nil || resp.Error.Code != tt.want {
				t.Errorf("error = %+v, want code %d", resp.Error, tt.want)
			}
		})
	}
}

func TestBatch(t *testing.T) {
	s := newTestServer(t)
	_, token := s.signUp("alice")

	body := `[
		{"jsonrpc":"2.0","id":1,"method":"user.get_user","params":{}},
		{"jsonrpc":"2.0","id":2,"method":"nope"},
		"junk",
		{"jsonrpc":"2.0","id":3,"method":"notify.unread_count"}
	]`
	w := s.post(token, body)
	var resps []JSONRPCResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resps); err != nil {
		t.Fatalf("decode: %v (%s)", err, w.Body.String())
	}
	if len(resps) != 4 {
		t.Fatalf("got %d responses, want 4", len(resps))
	}
	if resps[0].Error != nil || resps[0].ID != float64(1) {
		t.Errorf("response 0 = %+v", resps[0])
	}
	if resps[1].Error == nil || resps[1].Error.Code != ErrMethodNotFound {
		t.Errorf("response 1 = %+v, want method not found", resps[1])
	}
	if resps[2].Error == nil || resps[2].Error.Code != ErrInvalidRequest {
		t.Errorf("response 2 = %+v, want invalid request", resps[2])
	}
	if resps[3].Error != nil || resps[3].ID != float64(3) {
		t.Errorf("response 3 = %+v", resps[3])
	}
}

func TestCodeFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperr.Validationf("bad"), ErrInvalidParams},
		{apperr.NotFoundf("gone"), ErrNotFound},
		{apperr.Conflictf("taken"), ErrConflict},
		{apperr.Unauthorizedf("no"), ErrUnauthorized},
		{fmt.Errorf("wrapped: %w", apperr.Conflictf("taken")), ErrConflict},
		{errors.New("boom"), ErrServerError},
		{NewError(-32010, "custom"), -32010},
	}
	for _, tt := range tests {
		if got, _ := codeFor(tt.err); got != tt.want {
			t.Errorf("codeFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestSphereLifecycle(t *testing.T) {
	s := newTestServer(t)
	_, alice := s.signUp("alice")
	bobID, bob := s.signUp("bob")

	sphere := s.mustCall(alice, "sphere.create_sphere", map[string]interface{}{"name": "golang", "description": "gophers"}).Result
	sphereID := intOf(sphere["sphere_id"])

	if res := s.call(bob, "sphere.create_sphere", map[string]interface{}{"name": "GoLang"}); res.Error == nil || res.Error.Code != ErrConflict {
		t.Errorf("duplicate sphere name: %+v", res.Error)
	}

	s.mustCall(bob, "sphere.subscribe", map[string]interface{}{"sphere_id": sphereID})
	if res := s.call(bob, "sphere.subscribe", map[string]interface{}{"sphere_id": sphereID}); res.Error == nil || res.Error.Code != ErrConflict {
		t.Errorf("second subscribe: %+v", res.Error)
	}
	if res := s.call(bob, "sphere.create_satellite", map[string]interface{}{"sphere_id": sphereID, "name": "news"}); res.Error == nil || res.Error.Code != ErrUnauthorized {
		t.Errorf("member creating satellite: %+v", res.Error)
	}

	s.mustCall(alice, "sphere.create_satellite", map[string]interface{}{"sphere_id": sphereID, "name": "news"})
	s.mustCall(alice, "sphere.create_category", map[string]interface{}{"sphere_id": sphereID, "name": "help", "color": 3})

	got := s.mustCall("", "sphere.get_sphere", map[string]interface{}{"name": "golang"}).Result
	if intOf(got["num_members"]) != 1 {
		t.Errorf("num_members = %v, want 1", got["num_members"])
	}
	if sats, _ := got["satellites"].([]interface{}); len(sats) != 1 {
		t.Errorf("satellites = %v", got["satellites"])
	}
	if cats, _ := got["categories"].([]interface{}); len(cats) != 1 {
		t.Errorf("categories = %v", got["categories"])
	}

	s.mustCall(alice, "moderation.grant_role", map[string]interface{}{"user_id": bobID, "sphere_id": sphereID, "level": "manage"})
	perm := s.mustCall(bob, "moderation.get_permission", map[string]interface{}{"sphere_id": sphereID}).Result
	if perm["level"] != "Manage" {
		t.Errorf("bob's level = %v", perm["level"])
	}
	roles := s.mustCall("", "moderation.list_roles", map[string]interface{}{"sphere_id": sphereID}).List
	if len(roles) != 2 {
		t.Fatalf("roles = %v", roles)
	}
	if lead := roles[0].(map[string]interface{}); lead["level"] != "Lead" {
		t.Errorf("first role = %v, want the lead", lead)
	}
}

func TestVotingFlow(t *testing.T) {
	s := newTestServer(t)
	_, alice := s.signUp("alice")
	bobID, bob := s.signUp("bob")
	sphereID := intOf(s.mustCall(alice, "sphere.create_sphere", map[string]interface{}{"name": "golang"}).Result["sphere_id"])

	older := s.mustCall(alice, "content.create_post", map[string]interface{}{"sphere_id": sphereID, "title": "generics"}).Result
	newer := s.mustCall(alice, "content.create_post", map[string]interface{}{"sphere_id": sphereID, "title": "iterators", "link": "https://go.dev", "link_type": "link"}).Result
	if newer["author"] != "alice" || newer["link_type"] != "link" {
		t.Errorf("post object = %v", newer)
	}

	vote := s.mustCall(bob, "content.cast_vote", map[string]interface{}{"post_id": intOf(older["post_id"]), "value": 1}).Result
	if intOf(vote["user_id"]) != bobID || intOf(vote["value"]) != 1 {
		t.Errorf("vote = %v", vote)
	}
	if res := s.call(bob, "content.cast_vote", map[string]interface{}{"post_id": intOf(older["post_id"]), "value": 3}); res.Error == nil || res.Error.Code != ErrInvalidParams {
		t.Errorf("vote value 3: %+v", res.Error)
	}

	listing := s.mustCall("", "content.get_ranked_posts", map[string]interface{}{"sphere_id": sphereID, "sort": "best"}).List
	if len(listing) != 2 || intOf(listing[0].(map[string]interface{})["post_id"]) != intOf(older["post_id"]) {
		t.Errorf("best listing = %v", listing)
	}
	recent := s.mustCall("", "content.get_ranked_posts", map[string]interface{}{"sphere_id": sphereID, "sort": "recent", "limit": 1}).List
	if len(recent) != 1 || intOf(recent[0].(map[string]interface{})["post_id"]) != intOf(newer["post_id"]) {
		t.Errorf("recent listing = %v", recent)
	}

	post := s.mustCall("", "content.get_post", map[string]interface{}{"post_id": intOf(older["post_id"])}).Result
	votes := post["votes"].(map[string]interface{})
	if intOf(votes["score"]) != 1 || intOf(votes["score_plus"]) != 1 {
		t.Errorf("aggregate = %v", votes)
	}

	unread := s.mustCall(alice, "notify.unread_count", nil).Result
	if intOf(unread["unread"]) != 1 {
		t.Errorf("alice unread = %v, want 1", unread["unread"])
	}
	notes := s.mustCall(alice, "notify.list_notifications", map[string]interface{}{"limit": 10}).List
	if len(notes) != 1 || notes[0].(map[string]interface{})["type"] != "vote" {
		t.Errorf("notifications = %v", notes)
	}

	s.mustCall(bob, "content.retract_vote", map[string]interface{}{"post_id": intOf(older["post_id"])})
	mine := s.mustCall(bob, "content.get_vote", map[string]interface{}{"post_id": intOf(older["post_id"])}).Result
	if intOf(mine["value"]) != 0 {
		t.Errorf("vote after retract = %v", mine)
	}
	if res := s.call(bob, "content.retract_vote", map[string]interface{}{"post_id": intOf(older["post_id"])}); res.Error == nil || res.Error.Code != ErrNotFound {
		t.Errorf("second retract: %+v", res.Error)
	}
}

func TestListingFeeds(t *testing.T) {
	s := newTestServer(t)
	_, alice := s.signUp("alice")
	_, bob := s.signUp("bob")
	sphereID := intOf(s.mustCall(alice, "sphere.create_sphere", map[string]interface{}{"name": "golang"}).Result["sphere_id"])
	categoryID := intOf(s.mustCall(alice, "sphere.create_category", map[string]interface{}{"sphere_id": sphereID, "name": "help"}).Result["category_id"])

	plain := s.mustCall(alice, "content.create_post", map[string]interface{}{"sphere_id": sphereID, "title": "generics"}).Result
	s.mustCall(alice, "content.create_post", map[string]interface{}{"sphere_id": sphereID, "title": "gore", "is_nsfw": true})
	help := s.mustCall(alice, "content.create_post", map[string]interface{}{"sphere_id": sphereID, "title": "why nil", "category_id": categoryID}).Result

	listing := s.mustCall("", "content.get_ranked_posts", map[string]interface{}{"sphere_id": sphereID, "sort": "recent"}).List
	if len(listing) != 2 {
		t.Errorf("anonymous listing = %v, want the two safe posts", listing)
	}
	byCategory := s.mustCall(bob, "content.get_ranked_posts", map[string]interface{}{"sphere_id": sphereID, "category_id": categoryID}).List
	if len(byCategory) != 1 || intOf(byCategory[0].(map[string]interface{})["post_id"]) != intOf(help["post_id"]) {
		t.Errorf("category listing = %v", byCategory)
	}
	if res := s.call("not-a-token", "content.get_ranked_posts", map[string]interface{}{"sphere_id": sphereID}); res.Error == nil || res.Error.Code != ErrUnauthorized {
		t.Errorf("listing with a rejected token: %+v", res.Error)
	}

	if res := s.call("", "content.get_subscribed_posts", nil); res.Error == nil || res.Error.Code != ErrUnauthorized {
		t.Errorf("anonymous feed: %+v", res.Error)
	}
	if feed := s.mustCall(bob, "content.get_subscribed_posts", nil).List; len(feed) != 0 {
		t.Errorf("feed before subscribing = %v", feed)
	}
	s.mustCall(bob, "sphere.subscribe", map[string]interface{}{"sphere_id": sphereID})
	feed := s.mustCall(bob, "content.get_subscribed_posts", map[string]interface{}{"sort": "recent"}).List
	if len(feed) != 2 || intOf(feed[1].(map[string]interface{})["post_id"]) != intOf(plain["post_id"]) {
		t.Errorf("feed = %v", feed)
	}
}

func TestModerationFlow(t *testing.T) {
	s := newTestServer(t)
	_, alice := s.signUp("alice")
	bobID, bob := s.signUp("bob")
	sphereID := intOf(s.mustCall(alice, "sphere.create_sphere", map[string]interface{}{"name": "golang"}).Result["sphere_id"])
	rule := s.mustCall(alice, "moderation.insert_rule", map[string]interface{}{"sphere_id": sphereID, "priority": 1, "title": "No memes"}).Result
	post := s.mustCall(bob, "content.create_post", map[string]interface{}{"sphere_id": sphereID, "title": "lol"}).Result

	res := s.mustCall(alice, "moderation.moderate_content", map[string]interface{}{
		"post_id": intOf(post["post_id"]),
		"rule_id": intOf(rule["rule_id"]),
		"message": "off topic",
		"ban":     map[string]interface{}{},
	}).Result
	ban, _ := res["ban"].(map[string]interface{})
	if ban == nil || intOf(ban["user_id"]) != bobID || ban["until"] != nil {
		t.Fatalf("ban = %v", res["ban"])
	}
	mod := res["post"].(map[string]interface{})["moderation"].(map[string]interface{})
	if mod["message"] != "off topic" {
		t.Errorf("moderation = %v", mod)
	}

	status := s.mustCall(bob, "moderation.ban_status", map[string]interface{}{"sphere_id": sphereID}).Result
	if status["banned"] != true || status["permanent"] != true {
		t.Errorf("status = %v", status)
	}
	if res := s.call(bob, "content.create_post", map[string]interface{}{"sphere_id": sphereID, "title": "again"}); res.Error == nil || res.Error.Code != ErrUnauthorized {
		t.Errorf("banned author posting: %+v", res.Error)
	}

	s.mustCall(alice, "moderation.revoke_ban", map[string]interface{}{"ban_id": intOf(ban["ban_id"])})
	s.mustCall(alice, "moderation.revoke_ban", map[string]interface{}{"ban_id": intOf(ban["ban_id"])})
	history := s.mustCall(bob, "moderation.list_bans", nil).List
	if len(history) != 1 || history[0].(map[string]interface{})["revoked"] == nil {
		t.Errorf("ban history = %v", history)
	}

	rules := s.mustCall("", "moderation.list_rules", map[string]interface{}{"sphere_id": sphereID}).List
	if len(rules) == 0 {
		t.Fatalf("no rules listed")
	}
	last := rules[len(rules)-1].(map[string]interface{})
	if last["title"] != "No memes" || intOf(last["sphere_id"]) != sphereID {
		t.Errorf("sphere rule = %v", last)
	}

	got := s.mustCall("", "moderation.get_rule", map[string]interface{}{"rule_id": last["rule_id"]}).Result
	if got["rule_key"] != last["rule_key"] {
		t.Errorf("get_rule = %v, want key %v", got, last["rule_key"])
	}
	if res := s.call("", "moderation.get_rule", map[string]interface{}{"rule_id": 9999}); res.Error == nil || res.Error.Code != ErrNotFound {
		t.Errorf("get_rule unknown = %+v, want not found", res.Error)
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	s.http.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte(`"spherecore-api"`)) {
		t.Errorf("health = %d %s", w.Code, w.Body.String())
	}

	s.router.AddHealthCheck("redis", func(context.Context) error { return errors.New("connection refused") })
	w = httptest.NewRecorder()
	s.http.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/.well-known/healthcheck.json", nil))
	if w.Code != http.StatusServiceUnavailable || !bytes.Contains(w.Body.Bytes(), []byte("connection refused")) {
		t.Errorf("degraded health = %d %s", w.Code, w.Body.String())
	}
}
