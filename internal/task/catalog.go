package task

import "fmt"

// defiGrounding is prepended to every DeFi specialist instruction so the
// specialists stay on on-chain mechanics instead of generic finance language.
const defiGrounding = "You are a DeFi quant specialist working on an AI-driven trading system for the Solana ecosystem. " +
	"This is NOT traditional finance. Focus on on-chain mechanics: liquidity pools, AMMs, MEV, " +
	"sandwich attacks, impermanent loss, slippage, and Solana-specific transaction costs. " +
	"Use concrete values, specific protocols (Raydium, Jupiter, Meteora, Orca), and exact token " +
	"addresses where known (e.g. SOL, USDC, RAY, JUP). Avoid generic finance language."

// DeFiRubric replaces the standard rubric for the DeFi task. Kept on the task
// for introspection; the judge still scores under the standard dimension
// labels.
var DeFiRubric = []RubricDimension{
	{Name: "technical_depth", Description: "DeFi-specific depth: AMM math, on-chain mechanics, concrete protocol params"},
	{Name: "implementability", Description: "Could this be deployed on Solana today? Specific program IDs, API calls, tx flows"},
	{Name: "risk_coverage", Description: "Circuit breakers, IL protection, MEV defence, slippage limits, correlation controls"},
	{Name: "signal_specificity", Description: "Entry/exit triggers are exact, backtestable conditions - no vague 'buy the dip'"},
	{Name: "operational_completeness", Description: "Monitoring infra, alerting thresholds, emergency runbook, gas budget accounting"},
}

var aiIncidentResponse = Task{
	ID:   "ai_incident_response",
	Name: "AI Incident Response Protocol",
	Prompt: "Design a complete incident response protocol for a 5-agent AI organization. " +
		"Cover all of: (1) failure detection mechanisms, (2) inter-agent communication during incidents, " +
		"(3) work redistribution when an agent goes offline, (4) agent recovery and reintegration, " +
		"(5) post-incident knowledge capture. Be as comprehensive and technically specific as possible.",
	Roles: []SpecialistRole{
		{
			Name:        "Systems Architect",
			MemoryKey:   "failure detection heartbeat protocols",
			Instruction: "technical detection mechanisms for agent failure: heartbeat protocols, timeout thresholds, health check APIs, circuit breaker patterns. Include timing values and protocol specs.",
		},
		{
			Name:        "Coordination Specialist",
			MemoryKey:   "inter-agent communication incident",
			Instruction: "inter-agent communication during incidents: message formats, escalation paths, consensus mechanisms. Include message schemas and routing logic.",
		},
		{
			Name:        "Governance Designer",
			MemoryKey:   "governance decision incident response",
			Instruction: "decision framework for incident response: authority levels, escalation thresholds, audit requirements, rollback procedures. Include decision trees.",
		},
		{
			Name:        "Emergence Engineer",
			MemoryKey:   "work redistribution load balancing",
			Instruction: "work redistribution when capacity drops: algorithms for load balancing, quality preservation under degraded conditions. Use concrete algorithms, not metaphors.",
		},
		{
			Name:        "Network Analyst",
			MemoryKey:   "post-incident learning knowledge capture",
			Instruction: "post-incident learning: metrics to capture, org memory updates, pattern detection, preventing recurrence. Include specific data schemas.",
		},
	},
	Rubric: StandardRubric,
}

var softwareArchitecture = Task{
	ID:   "software_architecture",
	Name: "Distributed B2B SaaS Backend",
	Prompt: "Design a production-grade distributed backend for a B2B SaaS platform serving 1 million users. " +
		"Cover all of: (1) service decomposition and API design, (2) data storage and caching strategy, " +
		"(3) async processing and event streaming, (4) deployment and horizontal scaling approach, " +
		"(5) observability, alerting, and incident response. Be as technically specific as possible - " +
		"include technology choices, data schemas, SLA targets, and concrete implementation details.",
	Roles: []SpecialistRole{
		{
			Name:        "Systems Architect",
			MemoryKey:   "microservices decomposition API gateway design",
			Instruction: "service decomposition: domain boundaries, API contracts (REST/gRPC), gateway routing, authentication. Include OpenAPI schema patterns and service mesh choices.",
		},
		{
			Name:        "Database Engineer",
			MemoryKey:   "database storage caching strategy multi-tenant",
			Instruction: "data storage strategy: primary DB choice with rationale, read replica topology, caching layers (Redis patterns), multi-tenant isolation, backup/PITR. Include connection pool sizing.",
		},
		{
			Name:        "Infrastructure Lead",
			MemoryKey:   "kubernetes deployment scaling horizontal auto-scale",
			Instruction: "deployment and scaling: container orchestration (K8s), HPA/VPA configs, CI/CD pipeline, IaC approach, cost optimization. Include specific resource requests/limits.",
		},
		{
			Name:        "API Designer",
			MemoryKey:   "event streaming async processing queue",
			Instruction: "async processing and event streaming: message broker choice (Kafka/SQS/etc), event schemas, consumer group patterns, dead-letter handling, backpressure. Include throughput targets.",
		},
		{
			Name:        "Observability Engineer",
			MemoryKey:   "monitoring alerting SLO SLA observability",
			Instruction: "observability stack: metrics (Prometheus/OTEL), distributed tracing, log aggregation, SLO definitions, alert routing, on-call runbooks. Include specific SLA targets.",
		},
	},
	Rubric: StandardRubric,
}

var strategicPlanning = Task{
	ID:   "strategic_planning",
	Name: "Developer-Tools GTM Roadmap",
	Prompt: "Design a 90-day go-to-market roadmap for a developer-tools startup with a working prototype " +
		"and 3 design partners. Seed funding of $500K just closed. " +
		"Cover all of: (1) ICP definition and positioning against alternatives, " +
		"(2) developer acquisition channels and content strategy, " +
		"(3) activation funnel and onboarding optimization, " +
		"(4) early revenue milestones and pricing model, " +
		"(5) team structure and resource allocation for the 90 days. " +
		"Be specific with metrics, timelines, budgets, and decision criteria.",
	Roles: []SpecialistRole{
		{
			Name:        "Market Strategist",
			MemoryKey:   "ICP positioning messaging competitive differentiation",
			Instruction: "ICP definition and positioning: firmographic/psychographic profile, jobs-to-be-done, differentiation from alternatives, messaging hierarchy. Include specific ICP criteria and example companies.",
		},
		{
			Name:        "Growth Engineer",
			MemoryKey:   "developer acquisition channels content SEO community",
			Instruction: "developer acquisition: channel prioritization (SEO/content/community/OSS/paid), content calendar, distribution strategy. Include cost-per-acquisition targets and channel ROI estimates.",
		},
		{
			Name:        "Product Manager",
			MemoryKey:   "activation funnel onboarding time-to-value retention",
			Instruction: "activation and onboarding: funnel stages, time-to-first-value target, onboarding flow, activation metric definition, A/B test plan. Include specific conversion rate targets.",
		},
		{
			Name:        "Revenue Lead",
			MemoryKey:   "pricing model revenue milestone freemium PLG",
			Instruction: "revenue model and milestones: pricing tiers with rationale, freemium/PLG thresholds, monthly revenue targets per month (M1-M3), upsell triggers, expansion revenue strategy.",
		},
		{
			Name:        "Ops Planner",
			MemoryKey:   "team structure hiring resource allocation budget",
			Instruction: "team and resource plan: org structure for 90 days, hiring priorities vs contractor, budget allocation across channels/product/ops, decision gates at 30/60/90 days.",
		},
	},
	Rubric: StandardRubric,
}

var defiStrategyDesign = Task{
	ID:   "defi_strategy_design",
	Name: "DeFi Multi-Strategy Portfolio Design",
	Prompt: "Design a complete, executable DeFi trading strategy system for the Solana ecosystem " +
		"with the following HARD CONSTRAINTS that must ALL be satisfied:\n" +
		"  - Capital: EUR 50,000 starting capital\n" +
		"  - Target: 5% weekly yield minimum\n" +
		"  - Max drawdown: 20% of capital before auto-halt\n" +
		"  - Max single position: 30% of capital\n" +
		"  - At least 3 different on-chain strategy types " +
		"(e.g. LP provision, statistical arbitrage, yield farming, sniping)\n" +
		"  - Exact entry/exit signals (not 'buy when price goes up' - real triggers)\n" +
		"  - Emergency exit procedure (full position unwind path)\n" +
		"  - Gas cost accounting (Solana tx fees + priority fees factored into returns)\n" +
		"  - Specific token pairs from Solana ecosystem: SOL/USDC, RAY/SOL, JUP/USDC, etc.\n\n" +
		"Be as technically specific as possible: include protocol addresses, pool IDs, " +
		"signal formulas, position sizing math, monitoring thresholds, and an operational runbook.",
	Roles: []SpecialistRole{
		{
			Name:      "Quant Strategist",
			MemoryKey: "entry exit signals backtestable rules expected returns",
			Instruction: defiGrounding + "\n\n" +
				"Your focus: signal design, entry/exit logic, and backtestable rules. " +
				"Define EXACT entry triggers (e.g. 'SOL/USDC 1h RSI < 28 AND volume > 2x 20h avg') " +
				"and exit conditions for each of the 3+ strategies. " +
				"Include expected weekly return estimates with confidence intervals. " +
				"Specify which token pairs each strategy trades and why.",
		},
		{
			Name:      "Risk Manager",
			MemoryKey: "drawdown controls position sizing correlation circuit breakers",
			Instruction: defiGrounding + "\n\n" +
				"Your focus: drawdown controls, position sizing, and circuit breakers. " +
				"Define the exact 20% drawdown halt: what triggers it, how fast it fires, " +
				"which positions are liquidated first. Specify the 30% single-position cap " +
				"enforcement mechanism. Analyze correlation between strategies (LP IL vs arb PnL). " +
				"Include specific circuit breaker timing values (e.g. 'halt if 5% loss in 1h').",
		},
		{
			Name:      "Execution Engineer",
			MemoryKey: "on-chain execution gas optimization MEV protection tx routing",
			Instruction: defiGrounding + "\n\n" +
				"Your focus: on-chain execution mechanics and transaction efficiency. " +
				"Specify how each strategy executes on-chain: which Solana programs are called, " +
				"how tx priority fees are set dynamically, how MEV/sandwich attacks are mitigated " +
				"(Jito bundles? private RPC?). Include gas cost estimates per trade and " +
				"how those costs are deducted from PnL accounting. Routing logic for swaps " +
				"(Jupiter aggregator vs direct AMM).",
		},
		{
			Name:      "Protocol Analyst",
			MemoryKey: "protocol selection Raydium Jupiter Meteora LP mechanics yield sources",
			Instruction: defiGrounding + "\n\n" +
				"Your focus: specific protocol selection and mechanics. " +
				"For each strategy, name the exact protocol (Raydium CLMM vs CPMM, " +
				"Meteora DLMM, Orca Whirlpools, Jupiter DCA). Specify pool IDs or " +
				"how to select the highest-yield pool at runtime. Explain LP mechanics: " +
				"fee tiers, tick ranges for CLMM, rebalancing triggers, impermanent loss " +
				"thresholds. Include current APY ranges and how they're monitored.",
		},
		{
			Name:      "Compliance & Ops",
			MemoryKey: "emergency procedures monitoring alerting operational runbook",
			Instruction: defiGrounding + "\n\n" +
				"Your focus: emergency procedures, monitoring, and the operational runbook. " +
				"Define the full emergency exit procedure: sequence of actions to close all " +
				"positions within N minutes, with fallback if liquidity is thin. " +
				"Specify monitoring stack (on-chain data sources, alerting thresholds), " +
				"key health metrics to track (TVL drift, slippage creep, wallet balance), " +
				"and a step-by-step operational runbook for both normal operations and incidents.",
		},
	},
	Rubric: DeFiRubric,
}

var catalog = []Task{aiIncidentResponse, softwareArchitecture, strategicPlanning, defiStrategyDesign}

// All returns the built-in tasks in declaration order. Callers receive a fresh
// slice but share the underlying Task values; tasks are never mutated.
func All() []Task {
	out := make([]Task, len(catalog))
	copy(out, catalog)
	return out
}

// ByID looks a task up by its identifier.
func ByID(id string) (Task, error) {
	for _, t := range catalog {
		if t.ID == id {
			return t, nil
		}
	}
	return Task{}, fmt.Errorf("unknown task %q", id)
}

// IDs returns the catalog task identifiers in order.
func IDs() []string {
	ids := make([]string, len(catalog))
	for i, t := range catalog {
		ids[i] = t.ID
	}
	return ids
}
