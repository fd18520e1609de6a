package server_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/campaignboard/internal/campaigns"
	"github.com/MarcoPoloResearchLab/campaignboard/internal/server"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type campaignResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Goal      string `json:"goal"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	CreatedAt string `json:"createdAt"`
}

type postResponse struct {
	ID           string `json:"id"`
	CampaignID   string `json:"campaignId"`
	Platform     string `json:"platform"`
	Caption      string `json:"caption"`
	ScheduleDate string `json:"scheduleDate"`
}

type activityResponse struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	CampaignID   string `json:"campaignId"`
	CampaignName string `json:"campaignName"`
	PostID       string `json:"postId"`
	Platform     string `json:"platform"`
	Timestamp    string `json:"timestamp"`
}

type snapshotResponse struct {
	Campaigns  []campaignResponse        `json:"campaigns"`
	Posts      map[string][]postResponse `json:"posts"`
	Activities []activityResponse        `json:"activities"`
}

type testServer struct {
	t      *testing.T
	server *httptest.Server
}

func newTestServer(t *testing.T, dispatcher *server.RealtimeDispatcher) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repository, err := campaigns.NewMemoryRepository(campaigns.DefaultActivityCapacity)
	require.NoError(t, err)

	notifiers := []campaigns.ActivityNotifier{}
	if dispatcher != nil {
		notifiers = append(notifiers, dispatcher)
	}
	service, err := campaigns.NewService(campaigns.ServiceConfig{
		Repository: repository,
		IDProvider: campaigns.NewUUIDProvider(),
		Notifiers:  notifiers,
		Logger:     zap.NewNop(),
	})
	require.NoError(t, err)

	handler, err := server.NewHTTPHandler(server.Dependencies{
		CampaignService:   service,
		Realtime:          dispatcher,
		HeartbeatInterval: time.Hour,
		Logger:            zap.NewNop(),
	})
	require.NoError(t, err)

	httpServer := httptest.NewServer(handler)
	t.Cleanup(httpServer.Close)
	return &testServer{t: t, server: httpServer}
}

func (s *testServer) do(method, path string, body any, target any) int {
	s.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	request, err := http.NewRequest(method, s.server.URL+path, reader)
	require.NoError(s.t, err)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	response, err := s.server.Client().Do(request)
	require.NoError(s.t, err)
	defer response.Body.Close()
	if target != nil {
		require.NoError(s.t, json.NewDecoder(response.Body).Decode(target))
	}
	return response.StatusCode
}

func TestCampaignLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t, nil)

	var created campaignResponse
	status := srv.do(http.MethodPost, "/campaigns", map[string]string{
		"name":      "Summer Launch",
		"goal":      "Awareness",
		"startDate": "2025-06-01",
		"endDate":   "2025-08-31",
	}, &created)
	require.Equal(t, http.StatusOK, status)
	require.NotEmpty(t, created.ID)
	require.Equal(t, "Summer Launch", created.Name)

	var post postResponse
	status = srv.do(http.MethodPost, "/campaigns/"+created.ID+"/posts", map[string]string{
		"platform":     "Twitter",
		"caption":      "Launch day",
		"scheduleDate": "2025-06-01T10:00",
	}, &post)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, created.ID, post.CampaignID)
	require.True(t, strings.HasPrefix(post.ID, created.ID+"-"))

	var posts []postResponse
	require.Equal(t, http.StatusOK, srv.do(http.MethodGet, "/campaigns/"+created.ID+"/posts", nil, &posts))
	require.Len(t, posts, 1)

	var activities []activityResponse
	require.Equal(t, http.StatusOK, srv.do(http.MethodGet, "/activities", nil, &activities))
	require.Len(t, activities, 2)
	require.Equal(t, "post_created", activities[0].Type)
	require.Equal(t, "Summer Launch", activities[0].CampaignName)
	require.Equal(t, "Twitter", activities[0].Platform)
	require.Equal(t, "campaign_created", activities[1].Type)

	var deleted map[string]bool
	require.Equal(t, http.StatusOK, srv.do(http.MethodDelete, "/campaigns/"+created.ID, nil, &deleted))
	require.True(t, deleted["success"])

	var snapshot snapshotResponse
	require.Equal(t, http.StatusOK, srv.do(http.MethodGet, "/state", nil, &snapshot))
	require.Empty(t, snapshot.Campaigns)
	require.Empty(t, snapshot.Posts)
	require.Len(t, snapshot.Activities, 3)
	require.Equal(t, "campaign_deleted", snapshot.Activities[0].Type)
	require.Equal(t, "Summer Launch", snapshot.Activities[0].CampaignName)

	posts = nil
	require.Equal(t, http.StatusOK, srv.do(http.MethodGet, "/campaigns/"+created.ID+"/posts", nil, &posts))
	require.NotNil(t, posts)
	require.Empty(t, posts)

	require.Equal(t, http.StatusOK, srv.do(http.MethodDelete, "/campaigns/"+created.ID, nil, &deleted))
	require.True(t, deleted["success"])
	require.Equal(t, http.StatusOK, srv.do(http.MethodGet, "/activities", nil, &activities))
	require.Len(t, activities, 3)

	require.Equal(t, http.StatusNotFound, srv.do(http.MethodGet, "/campaigns/"+created.ID, nil, nil))
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)

	var body map[string]string
	require.Equal(t, http.StatusOK, srv.do(http.MethodGet, "/healthz", nil, &body))
	require.Equal(t, "ok", body["status"])
}

func TestEventStreamIsAbsentWithoutDispatcher(t *testing.T) {
	srv := newTestServer(t, nil)

	require.Equal(t, http.StatusNotFound, srv.do(http.MethodGet, "/events", nil, nil))
}

func TestEventStreamDeliversActivity(t *testing.T) {
	dispatcher := server.NewRealtimeDispatcher()
	srv := newTestServer(t, dispatcher)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.server.URL+"/events", http.NoBody)
	require.NoError(t, err)
	response, err := srv.server.Client().Do(request)
	require.NoError(t, err)
	defer response.Body.Close()
	require.Equal(t, http.StatusOK, response.StatusCode)
	require.True(t, strings.HasPrefix(response.Header.Get("Content-Type"), "text/event-stream"))

	var created campaignResponse
	require.Equal(t, http.StatusOK, srv.do(http.MethodPost, "/campaigns", map[string]string{"name": "Streamed"}, &created))

	scanner := bufio.NewScanner(response.Body)
	var (
		eventName string
		payload   activityResponse
	)
	for scanner.Scan() {
		line := scanner.Text()
		if value, ok := strings.CutPrefix(line, "event:"); ok {
			eventName = strings.TrimSpace(value)
			continue
		}
		if value, ok := strings.CutPrefix(line, "data:"); ok && eventName == server.RealtimeEventActivity {
			require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(value)), &payload))
			break
		}
	}
	require.Equal(t, server.RealtimeEventActivity, eventName)
	require.Equal(t, "campaign_created", payload.Type)
	require.Equal(t, created.ID, payload.CampaignID)
	require.Equal(t, "Streamed", payload.CampaignName)
}
