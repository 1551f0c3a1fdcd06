package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	grpcadapter "github.com/JoeShih716/go-stmt-ledger/internal/app/ledger/adapter/in/grpc"
	pkggrpc "github.com/JoeShih716/go-stmt-ledger/pkg/grpc"
)

var (
	httpBase    string
	grpcTarget  string
	totalCount  int
	concurrency int
	amount      int64
	seed        int64
	timeout     time.Duration
)

// rootCmd 對同一帳戶併發提款，最後檢查餘額與帳目總和
var rootCmd = &cobra.Command{
	Use:   "test_rpc_client",
	Short: "Concurrent withdraw load against one account",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		return run(ctx)
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.Flags().StringVar(&httpBase, "http", "http://localhost:8080", "HTTP base URL used to sign up")
	rootCmd.Flags().StringVar(&grpcTarget, "grpc", "localhost:50051", "gRPC server address")
	rootCmd.Flags().IntVarP(&totalCount, "requests", "n", 100000, "Total withdraw requests")
	rootCmd.Flags().IntVarP(&concurrency, "concurrency", "c", 1000, "Concurrent requests")
	rootCmd.Flags().Int64Var(&amount, "amount", 10, "Amount per withdrawal")
	rootCmd.Flags().Int64Var(&seed, "seed", 500000, "Initial deposit")
	rootCmd.Flags().DurationVar(&timeout, "timeout", 120*time.Second, "Overall timeout")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	token, err := signUp(ctx)
	if err != nil {
		return err
	}

	pool := pkggrpc.NewPool(pkggrpc.WithInterceptor(grpcadapter.BearerInterceptor(token)))
	defer pool.Close()
	conn, err := pool.GetConnection(grpcTarget)
	if err != nil {
		return err
	}
	client := grpcadapter.NewStatementClient(conn)

	if _, err := client.Deposit(ctx, seed, "load test seed"); err != nil {
		return fmt.Errorf("seed deposit: %w", err)
	}

	var (
		wg       sync.WaitGroup
		ok       atomic.Int64
		rejected atomic.Int64
		failed   atomic.Int64
	)
	sem := make(chan struct{}, concurrency)
	startTime := time.Now()

	for i := 0; i < totalCount; i++ {
		sem <- struct{}{}
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			_, err := client.Withdraw(ctx, amount, fmt.Sprintf("load %d", idx))
			switch {
			case err == nil:
				ok.Add(1)
			case status.Code(err) == codes.FailedPrecondition:
				rejected.Add(1)
			default:
				if failed.Add(1) <= 10 {
					fmt.Fprintf(os.Stderr, "withdraw %d failed: %v\n", idx, err)
				}
			}
		}(i)
	}
	wg.Wait()
	elapsed := time.Since(startTime)

	view, err := client.GetBalance(ctx)
	if err != nil {
		return fmt.Errorf("get balance: %w", err)
	}
	var sum int64
	for _, s := range view.Statements {
		sum += s.SignedAmount()
	}

	fmt.Printf("Completed %d requests in %v\n", totalCount, elapsed)
	fmt.Printf("TPS: %.2f\n", float64(totalCount)/elapsed.Seconds())
	fmt.Printf("ok=%d insufficient=%d failed=%d\n", ok.Load(), rejected.Load(), failed.Load())
	fmt.Printf("balance=%d statements=%d sum=%d\n", view.Balance, len(view.Statements), sum)

	expected := seed - ok.Load()*amount
	if view.Balance != expected || sum != view.Balance {
		return fmt.Errorf("inconsistent ledger: expected balance %d, got %d (statement sum %d)", expected, view.Balance, sum)
	}
	return nil
}

// signUp 以 HTTP 建立一次性使用者並取得 token
func signUp(ctx context.Context) (string, error) {
	email := fmt.Sprintf("load-%s@example.com", uuid.NewString()[:8])
	password := "load-test-password"

	if err := postJSON(ctx, "/api/v1/users", map[string]string{
		"name": "load test", "email": email, "password": password,
	}, http.StatusCreated, nil); err != nil {
		return "", fmt.Errorf("sign up: %w", err)
	}

	var session struct {
		Token string `json:"token"`
	}
	if err := postJSON(ctx, "/api/v1/sessions", map[string]string{
		"email": email, "password": password,
	}, http.StatusOK, &session); err != nil {
		return "", fmt.Errorf("sign in: %w", err)
	}
	if session.Token == "" {
		return "", errors.New("sign in: empty token")
	}
	return session.Token, nil
}

func postJSON(ctx context.Context, path string, body any, want int, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, httpBase+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		return fmt.Errorf("%s: unexpected status %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
