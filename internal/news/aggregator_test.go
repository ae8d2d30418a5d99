package news

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"herald/pkg/logging"
)

func feedServer(t *testing.T, articles string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"Data":[%s]}`, articles)
	}))
}

func article(id, title, body string, published time.Time) string {
	return fmt.Sprintf(`{"id":%q,"title":%q,"body":%q,"url":"https://example.com/%s","published_on":%d,"source_info":{"name":"TestWire"}}`,
		id, title, body, id, published.Unix())
}

func TestLatestNewsFiltersByKeywordAndAge(t *testing.T) {
	now := time.Now()
	srv := feedServer(t,
		article("1", "AI agents reshape crypto trading", "Autonomous agent adoption keeps growing across exchanges today.", now.Add(-time.Hour))+","+
			article("2", "Bitcoin ETF inflows continue", "Institutional demand is steady.", now.Add(-time.Hour))+","+
			article("3", "Machine learning models beat the market", "An old story.", now.Add(-48*time.Hour)))
	defer srv.Close()

	agg := NewAggregator(AggregatorConfig{
		FeedURL: srv.URL,
		Logger:  logging.NewLogger(),
	})

	items, err := agg.LatestNews(context.Background())
	if err != nil {
		t.Fatalf("latest news: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 relevant fresh article, got %d", len(items))
	}
	if items[0].ID != "1" {
		t.Fatalf("expected article 1, got %q", items[0].ID)
	}
	if items[0].Source != "TestWire" {
		t.Fatalf("expected source TestWire, got %q", items[0].Source)
	}
}

func TestLatestNewsExtractsInsights(t *testing.T) {
	now := time.Now()
	body := "AI trading systems posted record returns this quarter across venues. " +
		"The weather was nice. " +
		"Machine learning models now settle the majority of automated volume. " +
		"This post appeared first on SomeBlog."
	srv := feedServer(t, article("1", "AI takes over trading desks", body, now.Add(-time.Hour)))
	defer srv.Close()

	agg := NewAggregator(AggregatorConfig{
		FeedURL: srv.URL,
		Logger:  logging.NewLogger(),
	})

	items, err := agg.LatestNews(context.Background())
	if err != nil {
		t.Fatalf("latest news: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 article, got %d", len(items))
	}
	insights := items[0].Insights
	if len(insights) != 2 {
		t.Fatalf("expected 2 insights, got %d: %v", len(insights), insights)
	}
	for _, insight := range insights {
		if insight == "The weather was nice" {
			t.Fatalf("irrelevant sentence kept as insight")
		}
	}
}

func TestTrendingCoinsFiltersRelevantNames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"coins":[
			{"item":{"name":"DeepBrain AI","symbol":"DBC"}},
			{"item":{"name":"Dogecoin","symbol":"DOGE"}},
			{"item":{"name":"Render","symbol":"RNDR"}},
			{"item":{"name":"Fetch","symbol":"AI"}}
		]}`)
	}))
	defer srv.Close()

	agg := NewAggregator(AggregatorConfig{
		TrendingURL: srv.URL,
		Logger:      logging.NewLogger(),
	})

	coins, err := agg.TrendingCoins(context.Background())
	if err != nil {
		t.Fatalf("trending coins: %v", err)
	}
	if len(coins) != 2 {
		t.Fatalf("expected 2 relevant coins, got %d: %v", len(coins), coins)
	}
	if coins[0] != "DeepBrain AI" || coins[1] != "Fetch" {
		t.Fatalf("unexpected coins %v", coins)
	}
}

func TestDetectSkipsSeenArticles(t *testing.T) {
	now := time.Now()
	srv := feedServer(t,
		article("1", "AI agents reshape crypto trading", "Autonomous agent adoption keeps growing across exchanges today.", now.Add(-time.Hour)))
	defer srv.Close()

	tracker := NewTracker(nil, time.Hour, logging.NewLogger())
	agg := NewAggregator(AggregatorConfig{
		FeedURL: srv.URL,
		Tracker: tracker,
		Logger:  logging.NewLogger(),
	})

	sig, err := agg.Detect(context.Background())
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if sig == nil {
		t.Fatalf("expected a signal on first detection")
	}
	if sig.Kind != "news" {
		t.Fatalf("expected news signal, got %q", sig.Kind)
	}

	sig, err = agg.Detect(context.Background())
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if sig != nil {
		t.Fatalf("expected no signal for already-used article, got %+v", sig)
	}
}

func TestTrackerInMemoryFallback(t *testing.T) {
	tracker := NewTracker(nil, time.Hour, logging.NewLogger())
	ctx := context.Background()

	if tracker.Seen(ctx, "a-1") {
		t.Fatalf("fresh article reported as seen")
	}
	tracker.Mark(ctx, "a-1")
	if !tracker.Seen(ctx, "a-1") {
		t.Fatalf("marked article not reported as seen")
	}
}
