// Package api exposes the governance engine's persisted state surface to
// dashboards and tooling. The surface is strictly read-only: mutations go
// through the engine, never through HTTP.
package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/labstack/echo"
	"github.com/labstack/echo/middleware"
	"github.com/sirupsen/logrus"

	"github.com/agoralabs/agora/core"
)

type Server struct {
	engine *core.Governance
	logger *logrus.Logger
	echo   *echo.Echo
	listen string
}

func New(engine *core.Governance, logger *logrus.Logger, listen string) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		engine: engine,
		logger: logger,
		echo:   e,
		listen: listen,
	}
	s.bind()
	return s
}

type restDefinition struct {
	method string
	path   string
	fn     echo.HandlerFunc
}

func (s *Server) bind() {
	routes := []restDefinition{
		{method: echo.GET, path: "/v1/ping", fn: s.Ping},
		{method: echo.GET, path: "/v1/params", fn: s.GetParams},
		{method: echo.GET, path: "/v1/queue", fn: s.GetQueue},
		{method: echo.GET, path: "/v1/dequeue", fn: s.GetDequeue},
		{method: echo.GET, path: "/v1/proposals/:id", fn: s.GetProposal},
		{method: echo.GET, path: "/v1/proposals/:id/stage", fn: s.GetProposalStage},
		{method: echo.GET, path: "/v1/proposals/:id/passing", fn: s.GetProposalPassing},
		{method: echo.GET, path: "/v1/proposals/:id/votes", fn: s.GetProposalVotes},
		{method: echo.GET, path: "/v1/proposals/:id/transactions/:index", fn: s.GetProposalTransaction},
		{method: echo.GET, path: "/v1/accounts/:address", fn: s.GetAccount},
		{method: echo.GET, path: "/v1/accounts/:address/votes/:index", fn: s.GetAccountVote},
		{method: echo.GET, path: "/v1/constitution/:destination/:selector", fn: s.GetConstitution},
		{method: echo.GET, path: "/v1/hotfixes/:hash", fn: s.GetHotfix},
	}
	for _, route := range routes {
		s.echo.Add(route.method, route.path, route.fn)
	}
}

// Start serves until Stop is called. It blocks.
func (s *Server) Start() error {
	s.logger.Infof("governance api listening on %s", s.listen)
	return s.echo.Start(s.listen)
}

func (s *Server) Stop(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

type response struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg"`
	Data interface{} `json:"data,omitempty"`
}

func ok(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, response{Code: 0, Msg: "OK", Data: data})
}

func invalid(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, response{Code: 1, Msg: msg})
}

func notFound(c echo.Context) error {
	return c.JSON(http.StatusNotFound, response{Code: 2, Msg: "not found"})
}

func (s *Server) Ping(c echo.Context) error {
	return ok(c, "pong")
}

func (s *Server) GetParams(c echo.Context) error {
	params := s.engine.Params()
	return ok(c, map[string]interface{}{
		"minDeposit":          params.MinDeposit.String(),
		"concurrentProposals": params.ConcurrentProposals,
		"dequeueFrequency":    params.DequeueFrequency,
		"queueExpiry":         params.QueueExpiry,
		"stageDurations": map[string]uint64{
			"approval":   params.Durations.Approval,
			"referendum": params.Durations.Referendum,
			"execution":  params.Durations.Execution,
		},
		"approver": params.Approver.Hex(),
		"auditor":  params.Auditor.Hex(),
		"participation": map[string]string{
			"baseline":     s.engine.Baseline().String(),
			"floor":        params.Participation.Floor.String(),
			"updateFactor": params.Participation.UpdateFactor.String(),
			"quorumFactor": params.Participation.QuorumFactor.String(),
		},
		"lastDequeue":   s.engine.LastDequeueTime(),
		"proposalCount": s.engine.ProposalCount(),
	})
}

func (s *Server) GetQueue(c echo.Context) error {
	ids, weights := s.engine.QueueSnapshot()
	entries := make([]map[string]interface{}, 0, len(ids))
	for i, id := range ids {
		entries = append(entries, map[string]interface{}{
			"proposal": id,
			"upvotes":  weights[i].String(),
		})
	}
	return ok(c, map[string]interface{}{
		"length":  s.engine.QueueLength(),
		"entries": entries,
	})
}

func (s *Server) GetDequeue(c echo.Context) error {
	return ok(c, s.engine.DequeuedSnapshot())
}

func (s *Server) GetProposal(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return invalid(c, "malformed proposal id")
	}
	p, found := s.engine.GetProposal(id)
	if !found {
		return notFound(c)
	}
	txs := make([]map[string]interface{}, 0, len(p.Transactions))
	for _, tx := range p.Transactions {
		txs = append(txs, map[string]interface{}{
			"destination": tx.Destination.Hex(),
			"value":       tx.Value.String(),
			"data":        hexutil.Encode(tx.Data),
		})
	}
	return ok(c, map[string]interface{}{
		"id":             p.ID,
		"proposer":       p.Proposer.Hex(),
		"deposit":        p.Deposit.String(),
		"timestamp":      p.Timestamp,
		"approved":       p.Approved,
		"transactions":   txs,
		"approvalWeight": p.ApprovalWeight.String(),
		"networkWeight":  p.NetworkWeight.String(),
		"stage":          s.engine.ProposalStage(id).String(),
		"upvotes":        upvotesOf(s.engine, id),
	})
}

func (s *Server) GetProposalStage(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return invalid(c, "malformed proposal id")
	}
	return ok(c, s.engine.ProposalStage(id).String())
}

func (s *Server) GetProposalPassing(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return invalid(c, "malformed proposal id")
	}
	if !s.engine.ProposalExists(id) {
		return notFound(c)
	}
	return ok(c, s.engine.IsProposalPassing(id))
}

func (s *Server) GetProposalVotes(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return invalid(c, "malformed proposal id")
	}
	yes, no, abstain, found := s.engine.VoteTotals(id)
	if !found {
		return notFound(c)
	}
	return ok(c, map[string]string{
		"yes":     yes.String(),
		"no":      no.String(),
		"abstain": abstain.String(),
	})
}

func (s *Server) GetProposalTransaction(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return invalid(c, "malformed proposal id")
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return invalid(c, "malformed transaction index")
	}
	tx, found := s.engine.GetTransaction(id, index)
	if !found {
		return notFound(c)
	}
	return ok(c, map[string]interface{}{
		"destination": tx.Destination.Hex(),
		"value":       tx.Value.String(),
		"data":        hexutil.Encode(tx.Data),
	})
}

func (s *Server) GetAccount(c echo.Context) error {
	if !common.IsHexAddress(c.Param("address")) {
		return invalid(c, "malformed address")
	}
	account := common.HexToAddress(c.Param("address"))
	upvote := s.engine.GetUpvoteRecord(account)
	return ok(c, map[string]interface{}{
		"upvotedProposal":      upvote.ProposalID,
		"upvoteWeight":         upvote.Weight.String(),
		"mostRecentReferendum": s.engine.MostRecentReferendum(account),
		"isVoting":             s.engine.IsVoting(account),
		"refundBalance":        s.engine.RefundBalance(account).String(),
	})
}

func (s *Server) GetAccountVote(c echo.Context) error {
	if !common.IsHexAddress(c.Param("address")) {
		return invalid(c, "malformed address")
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return invalid(c, "malformed slot index")
	}
	record, found := s.engine.GetVoteRecord(common.HexToAddress(c.Param("address")), index)
	if !found {
		return notFound(c)
	}
	return ok(c, map[string]interface{}{
		"proposal": record.ProposalID,
		"value":    record.Value.String(),
		"weight":   record.Weight.String(),
	})
}

func (s *Server) GetConstitution(c echo.Context) error {
	if !common.IsHexAddress(c.Param("destination")) {
		return invalid(c, "malformed destination")
	}
	destination := common.HexToAddress(c.Param("destination"))
	var selector [4]byte
	raw, err := hexutil.Decode(c.Param("selector"))
	if err != nil || len(raw) != 4 {
		return invalid(c, "selector must be 4 hex bytes")
	}
	copy(selector[:], raw)
	return ok(c, s.engine.ConstitutionThreshold(destination, selector).String())
}

func (s *Server) GetHotfix(c echo.Context) error {
	raw, err := hexutil.Decode(c.Param("hash"))
	if err != nil || len(raw) != common.HashLength {
		return invalid(c, "malformed hotfix hash")
	}
	record := s.engine.GetHotfixRecord(common.BytesToHash(raw))
	return ok(c, map[string]bool{
		"approved": record.Approved,
		"audited":  record.Audited,
		"executed": record.Executed,
	})
}

func parseID(c echo.Context) (uint64, error) {
	return strconv.ParseUint(c.Param("id"), 10, 64)
}

func upvotesOf(engine *core.Governance, id uint64) string {
	if upvotes := engine.Upvotes(id); upvotes != nil {
		return upvotes.String()
	}
	return "0"
}
