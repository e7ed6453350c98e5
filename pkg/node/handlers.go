package node

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net"
	"net/http"

	"github.com/Layr-Labs/feeinfo-go/pkg/feeRegistry"
	"github.com/Layr-Labs/feeinfo-go/pkg/messages"
	"github.com/Layr-Labs/feeinfo-go/pkg/packing"
	"github.com/Layr-Labs/feeinfo-go/pkg/persistence"
	"github.com/Layr-Labs/feeinfo-go/pkg/schema"
	"github.com/Layr-Labs/feeinfo-go/pkg/signing"
	"github.com/ethereum/go-ethereum/common"
)

// FeeInfoResponse acknowledges an accepted fee update
type FeeInfoResponse struct {
	Type   string         `json:"type"`
	Signer common.Address `json:"signer"`
	Nonce  *big.Int       `json:"nonce"`
}

// FeeInfoListResponse holds every stored fee update of a token network
type FeeInfoListResponse struct {
	TokenNetworkAddress common.Address               `json:"token_network_address"`
	FeeInfos            []*persistence.FeeInfoRecord `json:"fee_infos"`
}

// ErrorResponse is returned with every non 2xx status
type ErrorResponse struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields,omitempty"`
}

type HealthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (s *Server) handleFeeInfo(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleSubmitFeeInfo(w, r)
	case http.MethodGet:
		s.handleGetFeeInfo(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
	}
}

// handleSubmitFeeInfo parses, verifies and stores a fee update
func (s *Server) handleSubmitFeeInfo(w http.ResponseWriter, r *http.Request) {
	log := s.requestLogger(r)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("failed to read request body: %w", err))
		return
	}

	// Any parse failure is the sender's fault.
	fi, err := messages.UnmarshalFeeInfo(body)
	if err != nil {
		log.Debugw("Rejected malformed fee update", "error", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}

	remote := remoteHost(r)
	record, err := s.node.registry.HandleFeeInfo(r.Context(), fi, remote)
	if err != nil {
		status := statusForError(err)
		if status == http.StatusInternalServerError {
			log.Errorw("Failed to handle fee update", "remote", remote, "error", err)
		} else {
			log.Infow("Rejected fee update", "remote", remote, "status", status, "error", err)
		}
		writeError(w, status, err)
		return
	}

	writeJSON(w, http.StatusOK, FeeInfoResponse{
		Type:   messages.MessageTypeFeeInfo,
		Signer: record.Signer,
		Nonce:  record.FeeInfo.Nonce(),
	})
}

// handleGetFeeInfo looks up one stored update or lists a token network
func (s *Server) handleGetFeeInfo(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	tokenNetworkParam := query.Get(schema.KeyTokenNetworkAddress)
	if !common.IsHexAddress(tokenNetworkParam) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%s must be a hex address", schema.KeyTokenNetworkAddress))
		return
	}
	tokenNetwork := common.HexToAddress(tokenNetworkParam)

	channelParam := query.Get(schema.KeyChannelIdentifier)
	if channelParam == "" {
		records, err := s.node.registry.ListFeeInfos(tokenNetwork)
		if err != nil {
			s.requestLogger(r).Errorw("Failed to list fee updates", "error", err)
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, FeeInfoListResponse{TokenNetworkAddress: tokenNetwork, FeeInfos: records})
		return
	}

	channel, ok := new(big.Int).SetString(channelParam, 10)
	if !ok || channel.Sign() < 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%s must be a non negative integer", schema.KeyChannelIdentifier))
		return
	}
	signerParam := query.Get("signer")
	if !common.IsHexAddress(signerParam) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("signer must be a hex address"))
		return
	}

	record, err := s.node.registry.GetFeeInfo(persistence.FeeInfoKey{
		TokenNetworkAddress: tokenNetwork,
		ChannelIdentifier:   channel,
		Signer:              common.HexToAddress(signerParam),
	})
	if err != nil {
		s.requestLogger(r).Errorw("Failed to load fee update", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if record == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("no fee update stored"))
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	w.Header().Set("Content-Type", "application/schema+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(schema.FeeInfoJSONSchema))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.node.registry.HealthCheck(); err != nil {
		s.requestLogger(r).Warnw("Health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy", Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// statusForError maps registry errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, schema.ErrValidation),
		errors.Is(err, messages.ErrConstruction),
		errors.Is(err, packing.ErrEncoding),
		errors.Is(err, signing.ErrInvalidSignatureFormat),
		errors.Is(err, feeRegistry.ErrUnsigned):
		return http.StatusBadRequest
	case errors.Is(err, signing.ErrSignatureRecovery):
		return http.StatusUnauthorized
	case errors.Is(err, feeRegistry.ErrStaleNonce):
		return http.StatusConflict
	case errors.Is(err, feeRegistry.ErrChainMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, feeRegistry.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	resp := ErrorResponse{Error: err.Error()}
	var validationErr *schema.ValidationError
	if errors.As(err, &validationErr) {
		resp.Fields = validationErr.Fields()
	}
	writeJSON(w, status, resp)
}
