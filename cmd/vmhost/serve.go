package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"vmhost/ledger"
)

func serveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve transaction execution over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadHostConfig(configPath)
			if err != nil {
				return err
			}
			srv := newHostServer(cfg)
			log.WithField("addr", cfg.ListenAddr).Info("vmhost serve listening")
			return http.ListenAndServe(cfg.ListenAddr, srv)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a vmhost YAML config")
	return cmd
}

// hostServer holds the storage/write-log state a single vmhost serve
// process exposes over HTTP, following core/virtual_machine.go's
// rate-limited /execute handler but routed with chi instead of gorilla/mux.
type hostServer struct {
	cfg     hostConfig
	storage *ledger.MemStorage
	wl      *ledger.WriteLog
	gen     *ledger.AddressGenerator
	router  chi.Router
}

func newHostServer(cfg hostConfig) *hostServer {
	s := &hostServer{
		cfg:     cfg,
		storage: ledger.NewMemStorage(cfg.ChainID, 1, [32]byte{}, 0),
		wl:      ledger.NewWriteLog(),
		gen:     ledger.NewAddressGenerator([]byte(cfg.ChainID), 0),
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateBurst)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !limiter.Allow() {
				http.Error(w, "rate limit", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, req)
		})
	})

	r.Post("/run-tx", s.handleRunTx)
	r.Post("/commit-block", s.handleCommitBlock)
	s.router = r
	return s
}

func (s *hostServer) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

type runTxRequest struct {
	Code []byte `json:"code"`
	Data []byte `json:"data"`
}

func (s *hostServer) handleRunTx(w http.ResponseWriter, r *http.Request) {
	var req runTxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	gasMeter := ledger.NewBlockGasMeter(s.cfg.BlockGas)
	result := ledger.RunTx(s.storage, s.wl, gasMeter, s.gen, ledger.Tx{Code: req.Code, Data: req.Data}, s.cfg.VPGas, log)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"accepted":     result.Accepted,
		"rejected_by":  result.RejectedBy.String(),
		"gas_used":     result.GasUsed,
		"error":        errString(result.Err),
		"changed_keys": result.ChangedKeys,
	})
}

func (s *hostServer) handleCommitBlock(w http.ResponseWriter, r *http.Request) {
	if err := ledger.CommitBlock(s.storage, s.wl, log); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.storage.SetAdvanceBlock(s.storage.BlockHeight()+1, s.storage.BlockHash(), s.storage.BlockEpoch())
	w.WriteHeader(http.StatusNoContent)
}
