package gateway

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"dropshop/core/events"
	"dropshop/gateway/middleware"
	"dropshop/native/airdrop"
	"dropshop/native/catalog"
	"dropshop/native/checkout"
	"dropshop/native/pricing"
	"dropshop/state"
	"dropshop/storage"
)

// eventTail caps the event history the server retains in memory and serves
// from GET /v1/events.
const eventTail = 256

// Config wires the server's collaborators. Admin names the only caller
// allowed to change platform params at runtime; the zero address leaves the
// params fixed to the configured values.
type Config struct {
	Params             catalog.Params
	Oracle             *pricing.Adapter
	Store              *storage.Store
	Logger             *slog.Logger
	Admin              [20]byte
	RateLimitPerSecond float64
	LogRequests        bool
}

// Server exposes the marketplace over HTTP. One mutex serialises every
// settlement call, matching the sequential execution model the engines are
// written against.
type Server struct {
	log      *slog.Logger
	obs      *middleware.Observability
	limiter  *middleware.RateLimiter
	router   chi.Router
	oracle   *pricing.Adapter
	store    *storage.Store
	recorder *events.Recorder
	admin    [20]byte

	mu          sync.Mutex
	ledger      *state.Ledger
	params      catalog.Params
	engines     map[[20]byte]*catalog.Engine
	shops       map[[20]byte]catalog.ShopInfo
	batcher     *checkout.Batcher
	distributor *airdrop.Distributor
}

// directory adapts the server's engine map to the batcher's lookup interface.
// It is only consulted while the server mutex is held.
type directory struct {
	server *Server
}

func (d directory) Shop(addr [20]byte) (*catalog.Engine, bool) {
	engine, ok := d.server.engines[addr]
	return engine, ok
}

// NewServer builds the HTTP surface and, when a store is supplied, recovers
// persisted state.
func NewServer(cfg Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	params, err := catalog.SanitizeParams(cfg.Params)
	if err != nil {
		return nil, err
	}

	s := &Server{
		log:      logger,
		oracle:   cfg.Oracle,
		store:    cfg.Store,
		admin:    cfg.Admin,
		recorder: &events.Recorder{Limit: eventTail},
		ledger:   state.NewLedger(),
		params:   params,
		engines:  make(map[[20]byte]*catalog.Engine),
		shops:    make(map[[20]byte]catalog.ShopInfo),
	}

	// The batcher settles from its own account, derived so it can never
	// collide with a key-holding participant.
	var batcherAddr [20]byte
	copy(batcherAddr[:], ethcrypto.Keccak256([]byte("dropshop.checkout.batcher"))[12:])
	s.batcher = checkout.NewBatcher(batcherAddr)
	s.batcher.SetDirectory(directory{server: s})
	s.batcher.SetState(s.ledger)
	s.batcher.SetEmitter(s.recorder)

	s.distributor = airdrop.NewDistributor()
	s.distributor.SetState(s.ledger)
	s.distributor.SetEmitter(s.recorder)

	if err := s.recover(); err != nil {
		return nil, err
	}

	s.obs = middleware.NewObservability(middleware.ObservabilityConfig{
		ServiceName: "dropshopd",
		LogRequests: cfg.LogRequests,
	}, logger)
	perSecond := cfg.RateLimitPerSecond
	if perSecond <= 0 {
		perSecond = 50
	}
	s.limiter = middleware.NewRateLimiter(perSecond, int(perSecond))
	s.router = s.buildRouter()
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) recover() error {
	if s.store == nil {
		return nil
	}
	snap, err := s.store.LoadSnapshot()
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return err
	default:
		ledger, err := state.FromSnapshot(snap)
		if err != nil {
			return err
		}
		s.ledger = ledger
		s.batcher.SetState(s.ledger)
		s.distributor.SetState(s.ledger)
	}
	if params, err := s.store.LoadParams(); err == nil {
		s.params = params
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	shops, err := s.store.ListShops()
	if err != nil {
		return err
	}
	for _, info := range shops {
		s.installEngine(info)
	}
	return nil
}

// installEngine wires one shop engine against the shared ledger. Callers hold
// the mutex (or run before the server is serving).
func (s *Server) installEngine(info catalog.ShopInfo) *catalog.Engine {
	engine := catalog.NewEngine(info)
	engine.SetState(s.ledger.Shop(info.Address))
	engine.SetOracle(s.oracle)
	engine.SetParams(s.params)
	engine.SetEmitter(s.recorder)
	s.engines[info.Address] = engine
	s.shops[info.Address] = info
	return engine
}

// persist flushes the ledger snapshot after a successful mutation. A flush
// failure is logged, not surfaced: the in-memory settlement already happened.
func (s *Server) persist() {
	if s.store == nil {
		return
	}
	if err := s.store.SaveSnapshot(s.ledger.Export()); err != nil {
		s.log.Error("persist snapshot", slog.String("error", err.Error()))
	}
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.limiter.Middleware)
	r.Use(s.obs.Middleware("api"))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", s.obs.MetricsHandler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/shops", s.handleCreateShop)
		r.Get("/shops", s.handleListShops)
		r.Route("/shops/{shop}", func(r chi.Router) {
			r.Get("/", s.handleGetShop)
			r.Post("/manager", s.handleSetManager)
			r.Post("/products", s.handleRegisterProduct)
			r.Get("/products/{id}", s.handleGetProduct)
			r.Post("/affiliates", s.handleRequestAffiliate)
			r.Get("/affiliates/{id}", s.handleGetAffiliate)
			r.Post("/affiliates/{id}/approve", s.handleApproveAffiliate)
			r.Post("/affiliates/{id}/disapprove", s.handleDisapproveAffiliate)
			r.Post("/purchase", s.handlePurchase)
			r.Post("/claim", s.handleClaim)
		})
		r.Post("/checkout", s.handleCheckout)
		r.Post("/airdrop/{standard}", s.handleAirdrop)
		r.Get("/params", s.handleGetParams)
		r.Put("/params", s.handlePutParams)
		r.Get("/events", s.handleEvents)
		r.Post("/admin/fund", s.handleFund)
	})
	return r
}

// --- plumbing ---

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("encode response", slog.String("error", err.Error()))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

// writeEngineError maps settlement errors onto HTTP status codes.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, catalog.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, catalog.ErrProductNotFound),
		errors.Is(err, catalog.ErrRequestNotFound),
		errors.Is(err, catalog.ErrBeneficiaryNotFound),
		errors.Is(err, checkout.ErrShopNotFound):
		status = http.StatusNotFound
	case errors.Is(err, catalog.ErrAlreadyRequested),
		errors.Is(err, catalog.ErrAlreadyClaimed):
		status = http.StatusConflict
	case errors.Is(err, catalog.ErrInsufficientPayment),
		errors.Is(err, catalog.ErrInsufficientInventory),
		errors.Is(err, catalog.ErrOversubscribedSplit),
		errors.Is(err, catalog.ErrInvalidSignature),
		errors.Is(err, catalog.ErrSlippage),
		errors.Is(err, checkout.ErrPaymentMismatch),
		errors.Is(err, checkout.ErrEmptyBatch),
		errors.Is(err, airdrop.ErrArrayLengthMismatch),
		errors.Is(err, airdrop.ErrEmptyBatch),
		errors.Is(err, pricing.ErrStaleOracle):
		status = http.StatusUnprocessableEntity
	}
	s.writeError(w, status, err)
}

func decodeBody(r *http.Request, into any) error {
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(into)
}

func (s *Server) shopFromURL(r *http.Request) (*catalog.Engine, error) {
	addr, err := decodeBech(chi.URLParam(r, "shop"))
	if err != nil {
		return nil, err
	}
	engine, ok := s.engines[addr]
	if !ok {
		return nil, checkout.ErrShopNotFound
	}
	return engine, nil
}

// --- handlers ---

func (s *Server) handleCreateShop(w http.ResponseWriter, r *http.Request) {
	var req createShopRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	owner, err := decodeBech(req.Owner)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	manager := owner
	if req.Manager != "" {
		if manager, err = decodeBech(req.Manager); err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	if req.Name == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("shop name required"))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// The shop address is derived from the owner and shop name, so one
	// owner can run several shops and re-creation is idempotent in address.
	var addr [20]byte
	copy(addr[:], ethcrypto.Keccak256([]byte("dropshop.shop"), owner[:], []byte(req.Name))[12:])
	if _, exists := s.engines[addr]; exists {
		s.writeError(w, http.StatusConflict, errors.New("shop already exists"))
		return
	}
	info := catalog.ShopInfo{
		Address:     addr,
		Owner:       owner,
		Manager:     manager,
		Name:        req.Name,
		LogoURL:     req.LogoURL,
		Description: req.Description,
	}
	s.installEngine(info)
	if s.store != nil {
		if err := s.store.PutShop(info); err != nil {
			s.log.Error("persist shop", slog.String("error", err.Error()))
		}
	}
	s.persist()
	s.writeJSON(w, http.StatusCreated, shopToResponse(info))
}

func (s *Server) handleListShops(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]shopResponse, 0, len(s.shops))
	for _, info := range s.shops {
		out = append(out, shopToResponse(info))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetShop(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	engine, err := s.shopFromURL(r)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, shopToResponse(engine.Shop()))
}

func (s *Server) handleSetManager(w http.ResponseWriter, r *http.Request) {
	var req setManagerRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := decodeBech(req.Caller)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	manager, err := decodeBech(req.Manager)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	engine, err := s.shopFromURL(r)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if err := engine.SetManager(caller, manager); err != nil {
		s.writeEngineError(w, err)
		return
	}
	info := engine.Shop()
	s.shops[info.Address] = info
	if s.store != nil {
		if err := s.store.PutShop(info); err != nil {
			s.log.Error("persist shop", slog.String("error", err.Error()))
		}
	}
	s.writeJSON(w, http.StatusOK, shopToResponse(info))
}

func (s *Server) handleRegisterProduct(w http.ResponseWriter, r *http.Request) {
	var req registerProductRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	def, caller, err := productDefinition(&req)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	engine, err := s.shopFromURL(r)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	var product *catalog.Product
	err = s.ledger.WithSnapshot(func() error {
		product, err = engine.RegisterProduct(caller, def)
		return err
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.persist()
	s.writeJSON(w, http.StatusCreated, productToResponse(product))
}

func productDefinition(req *registerProductRequest) (*catalog.ProductDefinition, [20]byte, error) {
	var caller [20]byte
	caller, err := decodeBech(req.Caller)
	if err != nil {
		return nil, caller, err
	}
	nft, err := decodeHexAddr(req.NFTAddress)
	if err != nil {
		return nil, caller, err
	}
	nftType, err := parseNFTType(req.NFTType)
	if err != nil {
		return nil, caller, err
	}
	productType, err := parseProductType(req.ProductType)
	if err != nil {
		return nil, caller, err
	}
	method, err := parsePaymentMethod(req.PaymentMethod)
	if err != nil {
		return nil, caller, err
	}
	amount, err := decodeAmount(req.Amount)
	if err != nil {
		return nil, caller, err
	}
	price, err := decodeAmount(req.Price)
	if err != nil {
		return nil, caller, err
	}
	def := &catalog.ProductDefinition{
		TokenID:       req.TokenID,
		NFTAddress:    nft,
		NFTType:       nftType,
		ProductType:   productType,
		Amount:        amount,
		Price:         price,
		PaymentMethod: method,
		AffiliateBps:  req.AffiliateBps,
	}
	if method == catalog.PayToken {
		if def.PaymentToken, err = decodeHexAddr(req.PaymentToken); err != nil {
			return nil, caller, err
		}
	}
	for _, b := range req.Beneficiaries {
		wallet, err := decodeBech(b.Wallet)
		if err != nil {
			return nil, caller, err
		}
		value, err := decodeAmount(b.Value)
		if err != nil {
			return nil, caller, err
		}
		def.Beneficiaries = append(def.Beneficiaries, &catalog.Beneficiary{
			IsPercentage: b.IsPercentage,
			Value:        value,
			Wallet:       wallet,
		})
	}
	return def, caller, nil
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := decodeHash(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	engine, err := s.shopFromURL(r)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	product, err := engine.GetProduct(id)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, productToResponse(product))
}

func (s *Server) handleRequestAffiliate(w http.ResponseWriter, r *http.Request) {
	var req affiliateRequestPayload
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	publisher, err := decodeBech(req.Publisher)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	productID, err := decodeHash(req.ProductID)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	engine, err := s.shopFromURL(r)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	id, err := engine.RequestAffiliate(publisher, productID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.persist()
	s.writeJSON(w, http.StatusCreated, affiliateResponse{
		ID:        id,
		Publisher: req.Publisher,
		ProductID: req.ProductID,
	})
}

func (s *Server) handleGetAffiliate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	engine, err := s.shopFromURL(r)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	req, err := engine.GetAffiliate(id)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, affiliateResponse{
		ID:        id,
		Publisher: encodeDrop(req.Publisher),
		ProductID: "0x" + hex.EncodeToString(req.ProductID[:]),
		Confirmed: req.Confirmed,
	})
}

func (s *Server) handleApproveAffiliate(w http.ResponseWriter, r *http.Request) {
	s.affiliateAction(w, r, true)
}

func (s *Server) handleDisapproveAffiliate(w http.ResponseWriter, r *http.Request) {
	s.affiliateAction(w, r, false)
}

func (s *Server) affiliateAction(w http.ResponseWriter, r *http.Request, approve bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	var req affiliateActionRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := decodeBech(req.Caller)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	engine, err := s.shopFromURL(r)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if approve {
		err = engine.ApproveRequest(caller, id)
	} else {
		err = engine.DisapproveRequest(caller, id)
	}
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.persist()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	buyer, err := decodeBech(req.Buyer)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	qty, err := decodeAmount(req.Quantity)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	value, err := decodeAmount(req.Value)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	var minOut *big.Int
	if req.MinAmountOut != "" {
		if minOut, err = decodeAmount(req.MinAmountOut); err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	engine, err := s.shopFromURL(r)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	var receipt *catalog.Receipt
	err = s.ledger.WithSnapshot(func() error {
		if req.AffiliateID != nil {
			receipt, err = engine.PurchaseAffiliate(buyer, *req.AffiliateID, qty, value, minOut)
			return err
		}
		productID, err := decodeHash(req.ProductID)
		if err != nil {
			return err
		}
		receipt, err = engine.Purchase(buyer, productID, qty, value, minOut)
		return err
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.persist()
	s.writeJSON(w, http.StatusOK, receiptToResponse(receipt))
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	claimer, err := decodeBech(req.Claimer)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	manager, err := decodeBech(req.Manager)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	signature, err := decodeSignature(req.Signature)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	engine, err := s.shopFromURL(r)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	err = s.ledger.WithSnapshot(func() error {
		return engine.ClaimPurchase(claimer, manager, signature, &req.Voucher)
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.persist()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	buyer, err := decodeBech(req.Buyer)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	value, err := decodeAmount(req.Value)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	batch := &checkout.Batch{}
	if req.PaymentToken != "" {
		if batch.PaymentToken, err = decodeHexAddr(req.PaymentToken); err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	if req.MinAmountOut != "" {
		if batch.MinAmountOut, err = decodeAmount(req.MinAmountOut); err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	for _, entry := range req.Entries {
		shop, err := decodeBech(entry.Shop)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		amount, err := decodeAmount(entry.Amount)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		var id *big.Int
		if entry.IsAffiliate {
			if id, err = decodeAmount(entry.ID); err != nil {
				s.writeError(w, http.StatusBadRequest, err)
				return
			}
		} else {
			hash, err := decodeHash(entry.ID)
			if err != nil {
				s.writeError(w, http.StatusBadRequest, err)
				return
			}
			id = new(big.Int).SetBytes(hash[:])
		}
		batch.Entries = append(batch.Entries, checkout.CartEntry{
			Amount:      amount,
			ID:          id,
			IsAffiliate: entry.IsAffiliate,
			Shop:        shop,
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	receipts, err := s.batcher.Purchase(buyer, batch, value)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.persist()
	out := make([]receiptResponse, 0, len(receipts))
	for _, receipt := range receipts {
		out = append(out, receiptToResponse(receipt))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAirdrop(w http.ResponseWriter, r *http.Request) {
	standard := chi.URLParam(r, "standard")
	var req airdropRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	sender, err := decodeBech(req.Sender)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	token, err := decodeHexAddr(req.Token)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	recipients := make([][20]byte, 0, len(req.Recipients))
	for _, raw := range req.Recipients {
		recipient, err := decodeBech(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		recipients = append(recipients, recipient)
	}
	amounts := make([]*big.Int, 0, len(req.Amounts))
	for _, raw := range req.Amounts {
		amount, err := decodeAmount(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		amounts = append(amounts, amount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch standard {
	case "erc20":
		err = s.distributor.DistributeERC20(sender, token, recipients, amounts, req.Memo)
	case "erc721":
		err = s.distributor.DistributeERC721(sender, token, recipients, req.TokenIDs, req.Memo)
	case "erc1155":
		err = s.distributor.DistributeERC1155(sender, token, req.TokenID, recipients, amounts, req.Memo)
	default:
		s.writeError(w, http.StatusNotFound, errors.New("unknown token standard"))
		return
	}
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.persist()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetParams(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeJSON(w, http.StatusOK, paramsPayload{
		FeeBps:           s.params.FeeBps,
		FeeWallet:        encodeDrop(s.params.FeeWallet),
		HeartbeatSeconds: uint64(s.oracle.Heartbeat() / time.Second),
	})
}

// handlePutParams updates the platform fee, fee wallet and oracle heartbeat.
// Admin only; with no admin configured the params stay fixed to the config.
func (s *Server) handlePutParams(w http.ResponseWriter, r *http.Request) {
	var req paramsPayload
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := decodeBech(req.Caller)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	wallet, err := decodeBech(req.FeeWallet)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	params, err := catalog.SanitizeParams(catalog.Params{FeeBps: req.FeeBps, FeeWallet: wallet})
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.admin == ([20]byte{}) || caller != s.admin {
		s.writeEngineError(w, catalog.ErrUnauthorized)
		return
	}
	s.params = params
	for _, engine := range s.engines {
		engine.SetParams(params)
	}
	if req.HeartbeatSeconds > 0 && s.oracle != nil {
		s.oracle.SetHeartbeat(time.Duration(req.HeartbeatSeconds) * time.Second)
	}
	if s.store != nil {
		if err := s.store.SaveParams(params); err != nil {
			s.log.Error("persist params", slog.String("error", err.Error()))
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEvents(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tail := s.recorder.Events
	if len(tail) > eventTail {
		tail = tail[len(tail)-eventTail:]
	}
	s.writeJSON(w, http.StatusOK, tail)
}

// handleFund credits balances directly. It exists for local development and
// integration testing against an empty ledger; production deployments fund
// accounts through the settlement substrate instead.
func (s *Server) handleFund(w http.ResponseWriter, r *http.Request) {
	var req fundRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	addr, err := decodeBech(req.Address)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := decodeAmount(req.Amount)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if req.Token != "" {
		token, err := decodeHexAddr(req.Token)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		err = s.ledger.CreditToken(token, addr, amount)
	} else {
		err = s.ledger.Credit(addr, amount)
	}
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.persist()
	w.WriteHeader(http.StatusNoContent)
}

// Ledger exposes the underlying ledger for wiring and tests.
func (s *Server) Ledger() *state.Ledger { return s.ledger }
