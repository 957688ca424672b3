package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"trustify/internal/config"
	"trustify/internal/hmacauth"
	"trustify/internal/journal"
	"trustify/internal/log"
	"trustify/internal/token"
)

const (
	statusMinted = "minted"

	labelVerificationFailed = "Verification failed"
	labelMetadataFailed     = "Metadata fetch failed"
)

type Server struct {
	cfg             *config.AppConfig
	token           token.Client
	journal         journal.Store
	mintAuth        *hmacauth.Verifier
	httpServer      *http.Server
	metrics         *metricsRegistry
	rpcHealthFn     func(context.Context) error
	journalHealthFn func(context.Context) error
}

// NewServer wires the handlers around an already constructed contract client.
// store may be nil, in which case mints are not journaled.
func NewServer(cfg *config.AppConfig, client token.Client, store journal.Store) *Server {
	metrics := newMetricsRegistry()

	s := &Server{
		cfg:     cfg,
		token:   client,
		journal: store,
		mintAuth: &hmacauth.Verifier{
			Secret:  cfg.Auth.MintHMACSecret,
			MaxSkew: cfg.Auth.HMACClockSkew,
			Reject:  rejectUnauthorized,
		},
		metrics: metrics,
	}

	if checker, ok := client.(token.HealthChecker); ok {
		s.rpcHealthFn = checker.Ping
	}
	if checker, ok := store.(interface{ Ping(context.Context) error }); ok {
		s.journalHealthFn = checker.Ping
	}

	mux := http.NewServeMux()
	mux.Handle("POST /mint", s.mintAuth.Middleware(http.HandlerFunc(s.handleMint)))
	mux.HandleFunc("GET /verify/{tokenId}", s.handleVerify)
	mux.HandleFunc("GET /token/{tokenId}", s.handleTokenMetadata)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", metrics.handler())

	s.httpServer = &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Service.HTTPPort),
		Handler:           corsMiddleware(cfg.Service.CORSAllowedOrigins, requestIDMiddleware(accessLogMiddleware(recoveryMiddleware(mux)))),
		ReadHeaderTimeout: 15 * time.Second,
	}
	return s
}

// Handler exposes the full middleware chain, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Start() error {
	log.L(context.Background()).Infof("Trustify gateway listening on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// mintRequest keeps the raw JSON values so that any present value passes
// the required-field check, whatever its type.
type mintRequest struct {
	Buyer   interface{} `json:"buyer"`
	OrderID interface{} `json:"orderId"`
}

type mintResponse struct {
	Status  string `json:"status"`
	TxHash  string `json:"txHash"`
	TokenID string `json:"tokenId"`
}

type verifyResponse struct {
	TokenID string `json:"tokenId"`
	Owner   string `json:"owner"`
}

type metadataResponse struct {
	TokenID  string `json:"tokenId"`
	Metadata string `json:"metadata"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type queryErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

var (
	errMissingMintFields = errors.New("buyer and orderId are required")
	errNotAString        = errors.New("expected a string")
)

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var payload mintRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		s.metrics.incMint("invalid")
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json payload"})
		return
	}
	buyer, orderID, err := payload.args()
	if errors.Is(err, errMissingMintFields) {
		s.metrics.incMint("invalid")
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		// Present but not encodable as contract arguments.
		log.L(ctx).Errorf("Mint failed: %s", err)
		s.metrics.incMint("failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	log.L(ctx).Infof("Minting token for buyer=%s orderId=%s", buyer, orderID)

	// A mined transaction is final, so the wait outlives a disconnected caller.
	start := time.Now()
	receipt, err := s.token.Mint(context.WithoutCancel(ctx), buyer, orderID)
	s.metrics.observeRPC("mint", start)
	if err == nil && receipt == nil {
		err = errors.New("mint returned no receipt")
	}
	if err != nil {
		log.L(ctx).Errorf("Mint failed for orderId=%s: %s", orderID, err)
		s.metrics.incMint("failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	txHash := receipt.TxHash.Hex()
	extraction := token.ExtractTokenID(receipt)
	if extraction.Found() {
		log.L(ctx).Infof("Extracted tokenId=%s from %s", extraction.TokenID, txHash)
		s.metrics.incExtraction("found")
	} else {
		log.L(ctx).Warnf("TokenId unavailable for %s: %s", txHash, extraction.Reason)
		s.metrics.incExtraction("unknown")
	}

	s.recordMint(ctx, journal.Record{
		OrderID:  orderID,
		Buyer:    buyer,
		TxHash:   txHash,
		TokenID:  extraction.TokenID,
		MintedAt: time.Now().UTC(),
	})

	writeJSON(w, http.StatusOK, mintResponse{
		Status:  statusMinted,
		TxHash:  txHash,
		TokenID: extraction.TokenID,
	})
	s.metrics.incMint(statusMinted)
}

// args treats null, "", false and 0 as missing. Any other value is present,
// but the contract only takes strings.
func (req mintRequest) args() (buyer, orderID string, err error) {
	if !present(req.Buyer) || !present(req.OrderID) {
		return "", "", errMissingMintFields
	}
	if buyer, err = stringArg("buyer", req.Buyer); err != nil {
		return "", "", err
	}
	if orderID, err = stringArg("orderId", req.OrderID); err != nil {
		return "", "", err
	}
	return buyer, orderID, nil
}

func present(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return false
	case string:
		return val != ""
	case bool:
		return val
	case float64:
		return val != 0
	default:
		return true
	}
}

func stringArg(name string, v interface{}) (string, error) {
	if str, ok := v.(string); ok {
		return str, nil
	}
	raw, _ := json.Marshal(v)
	return "", fmt.Errorf("invalid %s value %s: %w", name, raw, errNotAString)
}

// recordMint never fails the request: the transaction is already on chain.
func (s *Server) recordMint(ctx context.Context, rec journal.Record) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Append(context.WithoutCancel(ctx), rec); err != nil {
		log.L(ctx).Errorf("Failed to journal mint %s for orderId=%s: %s", rec.TxHash, rec.OrderID, err)
	}
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tokenID := r.PathValue("tokenId")

	start := time.Now()
	owner, err := s.token.OwnerOf(ctx, tokenID)
	s.metrics.observeRPC("ownerOf", start)
	if err != nil {
		log.L(ctx).Errorf("%s for tokenId=%s: %s", labelVerificationFailed, tokenID, err)
		s.metrics.incQuery("verify", "failed")
		writeJSON(w, http.StatusInternalServerError, queryErrorResponse{Error: labelVerificationFailed, Details: err.Error()})
		return
	}

	s.metrics.incQuery("verify", "ok")
	writeJSON(w, http.StatusOK, verifyResponse{TokenID: tokenID, Owner: owner})
}

func (s *Server) handleTokenMetadata(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tokenID := r.PathValue("tokenId")

	start := time.Now()
	metadata, err := s.token.TokenMetadata(ctx, tokenID)
	s.metrics.observeRPC("tokenMetadata", start)
	if err != nil {
		log.L(ctx).Errorf("%s for tokenId=%s: %s", labelMetadataFailed, tokenID, err)
		s.metrics.incQuery("metadata", "failed")
		writeJSON(w, http.StatusInternalServerError, queryErrorResponse{Error: labelMetadataFailed, Details: err.Error()})
		return
	}

	s.metrics.incQuery("metadata", "ok")
	writeJSON(w, http.StatusOK, metadataResponse{TokenID: tokenID, Metadata: metadata})
}

type dependencyHealth struct {
	Connected bool    `json:"connected"`
	LatencyMs float64 `json:"latency_ms,omitempty"`
	Error     string  `json:"error,omitempty"`
}

func probe(ctx context.Context, fn func(context.Context) error) dependencyHealth {
	if fn == nil {
		return dependencyHealth{Connected: true}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	start := time.Now()
	if err := fn(ctx); err != nil {
		return dependencyHealth{Connected: false, Error: err.Error()}
	}
	return dependencyHealth{
		Connected: true,
		LatencyMs: float64(time.Since(start).Microseconds()) / 1000.0,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rpcInfo := probe(ctx, s.rpcHealthFn)
	journalInfo := probe(ctx, s.journalHealthFn)

	status, code := "healthy", http.StatusOK
	if !rpcInfo.Connected || !journalInfo.Connected {
		status, code = "degraded", http.StatusServiceUnavailable
		log.L(ctx).Warnf("Health degraded: rpc=%+v journal=%+v", rpcInfo, journalInfo)
	}

	writeJSON(w, code, struct {
		Status  string           `json:"status"`
		RPC     dependencyHealth `json:"rpc"`
		Journal dependencyHealth `json:"journal"`
	}{
		Status:  status,
		RPC:     rpcInfo,
		Journal: journalInfo,
	})
}

func rejectUnauthorized(w http.ResponseWriter, _ *http.Request, err error) {
	writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
