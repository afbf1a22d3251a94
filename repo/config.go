package repo

import (
	"time"
)

type Config struct {
	RepoRoot   string     `mapstructure:"-" toml:"-"`
	Chain      Chain      `mapstructure:"chain" toml:"chain"`
	Governance Governance `mapstructure:"governance" toml:"governance"`
	API        API        `mapstructure:"api" toml:"api"`
	Log        Log        `mapstructure:"log" toml:"log"`
	Accounts   []Account  `mapstructure:"accounts" toml:"accounts"`
}

type Chain struct {
	// Enable turns on the chain-backed executor; when false proposal calls
	// are performed by a local logging executor instead.
	Enable      bool   `mapstructure:"enable" toml:"enable"`
	DialUrl     string `mapstructure:"dial_url" toml:"dial_url"`
	ChainID     uint64 `mapstructure:"chain_id" toml:"chain_id"`
	ExecutorKey string `mapstructure:"executor_key" toml:"executor_key"`
}

type Governance struct {
	// MinDeposit is a decimal integer string so large token amounts fit.
	MinDeposit          string        `mapstructure:"min_deposit" toml:"min_deposit"`
	ConcurrentProposals int           `mapstructure:"concurrent_proposals" toml:"concurrent_proposals"`
	DequeueFrequency    time.Duration `mapstructure:"dequeue_frequency" toml:"dequeue_frequency"`
	QueueExpiry         time.Duration `mapstructure:"queue_expiry" toml:"queue_expiry"`
	ApprovalDuration    time.Duration `mapstructure:"approval_duration" toml:"approval_duration"`
	ReferendumDuration  time.Duration `mapstructure:"referendum_duration" toml:"referendum_duration"`
	ExecutionDuration   time.Duration `mapstructure:"execution_duration" toml:"execution_duration"`
	Approver            string        `mapstructure:"approver" toml:"approver"`
	Auditor             string        `mapstructure:"auditor" toml:"auditor"`

	// Participation parameters are decimal fractions in [0, 1].
	ParticipationBaseline string `mapstructure:"participation_baseline" toml:"participation_baseline"`
	ParticipationFloor    string `mapstructure:"participation_floor" toml:"participation_floor"`
	BaselineUpdateFactor  string `mapstructure:"baseline_update_factor" toml:"baseline_update_factor"`
	BaselineQuorumFactor  string `mapstructure:"baseline_quorum_factor" toml:"baseline_quorum_factor"`

	Constitution []ConstitutionRule `mapstructure:"constitution" toml:"constitution"`
}

// ConstitutionRule seeds a pass threshold for a destination contract, or
// for one of its functions when selector (4 hex bytes) is set.
type ConstitutionRule struct {
	Destination string `mapstructure:"destination" toml:"destination"`
	Selector    string `mapstructure:"selector" toml:"selector"`
	Threshold   string `mapstructure:"threshold" toml:"threshold"`
}

type API struct {
	Enable bool   `mapstructure:"enable" toml:"enable"`
	Listen string `mapstructure:"listen" toml:"listen"`
}

type Log struct {
	Level        string        `mapstructure:"level" toml:"level"`
	Filename     string        `mapstructure:"filename" toml:"filename"`
	ReportCaller bool          `mapstructure:"report_caller" toml:"report_caller"`
	MaxAge       time.Duration `mapstructure:"max_age" toml:"max_age"`
	RotationTime time.Duration `mapstructure:"rotation_time" toml:"rotation_time"`
}

// Account is a static voting-weight table entry, used when no staking
// backend supplies weights.
type Account struct {
	Address string `mapstructure:"address" toml:"address"`
	Weight  string `mapstructure:"weight" toml:"weight"`
	Frozen  bool   `mapstructure:"frozen" toml:"frozen"`
}

func DefaultConfig(repoRoot string) *Config {
	return &Config{
		RepoRoot: repoRoot,
		Chain: Chain{
			Enable:  false,
			DialUrl: "ws://localhost:8546",
			ChainID: 1,
		},
		Governance: Governance{
			MinDeposit:            "100",
			ConcurrentProposals:   3,
			DequeueFrequency:      4 * time.Hour,
			QueueExpiry:           4 * 7 * 24 * time.Hour,
			ApprovalDuration:      24 * time.Hour,
			ReferendumDuration:    5 * 24 * time.Hour,
			ExecutionDuration:     3 * 24 * time.Hour,
			Approver:              "0x0000000000000000000000000000000000000000",
			Auditor:               "0x0000000000000000000000000000000000000000",
			ParticipationBaseline: "0.05",
			ParticipationFloor:    "0.01",
			BaselineUpdateFactor:  "0.2",
			BaselineQuorumFactor:  "1",
		},
		API: API{
			Enable: true,
			Listen: "127.0.0.1:8580",
		},
		Log: Log{
			Level:        "info",
			Filename:     "agora.log",
			ReportCaller: false,
			MaxAge:       30 * 24 * time.Hour,
			RotationTime: 24 * time.Hour,
		},
	}
}
