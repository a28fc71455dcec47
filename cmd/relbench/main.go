package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/d60-Lab/village/config"
	"github.com/d60-Lab/village/internal/identity"
	"github.com/d60-Lab/village/internal/model"
	"github.com/d60-Lab/village/internal/repository"
	"github.com/d60-Lab/village/internal/service"
	"github.com/d60-Lab/village/pkg/database"
	"github.com/d60-Lab/village/pkg/logger"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func check(err error) {
	if err != nil {
		panic(err)
	}
}

func envInt(name string, def int) int {
	if s := os.Getenv(name); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func pct(vs []time.Duration, p float64) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	xs := append([]time.Duration(nil), vs...)
	sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
	k := int(math.Ceil(p*float64(len(xs)))) - 1
	if k < 0 {
		k = 0
	}
	if k >= len(xs) {
		k = len(xs) - 1
	}
	return xs[k]
}

// run 用 conc 个 worker 执行 n 次 op，返回总耗时与每次延迟
func run(n, conc int, op func(i int)) (time.Duration, []time.Duration) {
	if conc > n {
		conc = n
	}
	feed := make(chan int, n)
	for i := 0; i < n; i++ {
		feed <- i
	}
	close(feed)

	recs := make([]time.Duration, 0, n)
	var mu sync.Mutex
	var wg sync.WaitGroup
	t0 := time.Now()
	for w := 0; w < conc; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range feed {
				st := time.Now()
				op(i)
				d := time.Since(st)
				mu.Lock()
				recs = append(recs, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return time.Since(t0), recs
}

func report(name string, total time.Duration, recs []time.Duration) {
	if len(recs) == 0 {
		return
	}
	fmt.Printf("%-18s total: %v, per op: %v, p50: %v, p95: %v, p99: %v\n",
		name, total, total/time.Duration(len(recs)), pct(recs, 0.50), pct(recs, 0.95), pct(recs, 0.99))
}

func main() {
	cfg := must(config.Load())
	_ = logger.Init("warn", cfg.Log.Format)
	db := must(database.InitDB(cfg))

	followRepo := repository.NewFollowRepository(db)
	requestRepo := repository.NewFollowRequestRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	contactRepo := repository.NewContactRepository(db)

	purger := service.NewContactPurger(contactRepo, 100000, cfg.Contacts.Retention, cfg.Contacts.SweepInterval)
	stop := purger.Start(8)

	// 压测不经过限流
	gate := service.OpenGate()
	connSvc := service.NewConnectionService(db, followRepo, requestRepo, profileRepo, gate, nil)
	contactSvc := service.NewContactService(db, contactRepo, profileRepo, gate, purger, cfg.Contacts.MaxBatch)
	suggestSvc := service.NewSuggestionService(repository.NewSuggestionRepository(db), profileRepo, nil, gate, cfg.Suggestions.MaxLimit)

	ctx := context.Background()
	N := envInt("N", 10000)
	CONC := envInt("CONC", 1)
	BATCH := envInt("BATCH", 200)

	// seed：一个私密的社区带头人 + N 个普通用户，每人登记一个邮箱
	runID := uuid.New().String()[:8]
	celeb := &model.Profile{ID: uuid.New().String(), Username: "leader-" + runID, PrivacySetting: model.PrivacyPrivate, IsCommunityLeader: true}
	check(profileRepo.Save(ctx, celeb))
	users := make([]string, N)
	emails := make([]string, N)
	for i := 0; i < N; i++ {
		users[i] = uuid.New().String()
		emails[i] = fmt.Sprintf("parent%d-%s@example.com", i, runID)
		check(profileRepo.Save(ctx, &model.Profile{ID: users[i], Username: fmt.Sprintf("p%d-%s", i, runID), FullName: fmt.Sprintf("Parent %d", i)}))
		check(contactSvc.RegisterIdentifiers(ctx, users[i], emails[i], ""))
	}

	// 1. 并发向带头人发起关注申请
	reqIDs := make([]string, N)
	total, recs := run(N, CONC, func(i int) {
		if res, err := connSvc.RequestFollow(ctx, service.Actor{UserID: users[i]}, celeb.ID); err == nil {
			reqIDs[i] = res.RequestID
		}
	})
	report("request_follow", total, recs)

	// 2. 带头人逐一审批
	leader := service.Actor{UserID: celeb.ID}
	total, recs = run(N, CONC, func(i int) {
		if reqIDs[i] != "" {
			_, _ = connSvc.RespondToRequest(ctx, leader, reqIDs[i], service.ActionApprove)
		}
	})
	report("respond_approve", total, recs)

	// 3. 通讯录匹配：每次提交 BATCH 个摘要
	rounds := N / BATCH
	if rounds < 1 {
		rounds = 1
	}
	drainStart := time.Now()
	total, recs = run(rounds, CONC, func(r int) {
		ids := make([]service.SubmittedIdentifier, 0, BATCH)
		for j := 0; j < BATCH && j < N; j++ {
			h := must(identity.HashEmail(emails[(r*BATCH+j)%N]))
			ids = append(ids, service.SubmittedIdentifier{Hash: h.Digest, Type: h.Type})
		}
		_, _ = contactSvc.MatchContacts(ctx, service.Actor{UserID: users[r%N]}, ids)
	})
	report("match_contacts", total, recs)

	// 4. 推荐
	total, recs = run(N, CONC, func(i int) {
		_, _ = suggestSvc.Suggest(ctx, service.Actor{UserID: users[i]}, 20)
	})
	report("suggest", total, recs)

	q0 := time.Now()
	followers, _ := connSvc.ListFollowers(ctx, celeb.ID, 1, 50)
	fmt.Printf("list_followers(%d) latency: %v\n", len(followers), time.Since(q0))

	// 清理落地指标
	_ = stop(ctx)
	drainDur := time.Since(drainStart)
	purged := make([]time.Duration, 0, rounds)
collect:
	for {
		select {
		case d := <-purger.Metrics():
			purged = append(purged, d)
		default:
			break collect
		}
	}
	fmt.Printf("N=%d, CONC=%d, BATCH=%d\n", N, CONC, BATCH)
	if len(purged) > 0 {
		fmt.Printf("contact purge landing: samples=%d, p50=%v, p95=%v, p99=%v, drain=%v\n",
			len(purged), pct(purged, 0.50), pct(purged, 0.95), pct(purged, 0.99), drainDur)
	}
}
