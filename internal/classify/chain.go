package classify

// DefaultChain is the fixed, priority-ordered detector chain. Order is
// normative: a transaction is classified by the first detector that matches,
// never by whichever happens to look "best". Several detectors exist purely
// to pre-empt a more general one further down the chain (BitcoinStamps must
// run before Counterparty because a stamp can ride inside a Counterparty
// envelope; OpReturnSignalled's generic-ASCII branch must not steal anything
// a named protocol would otherwise have claimed).
func DefaultChain() []Detector {
	return []Detector{
		OmniDetector{},
		ChancecoinDetector{},
		BitcoinStampsDetector{},
		CounterpartyDetector{},
		AsciiIdentifierProtocolsDetector{},
		PPkDetector{},
		WikiLeaksCablegateDetector{},
		OpReturnSignalledDetector{},
		DataStorageDetector{},
		LikelyDataStorageDetector{},
		LikelyLegitimateMultisigDetector{},
		UnknownDetector{},
	}
}

// ClassifyTransaction runs ctx through chain in order and returns the first
// match. UnknownDetector always matches, so as long as chain ends with it
// this never falls through.
func ClassifyTransaction(ctx TxContext, chain []Detector) Verdict {
	for _, d := range chain {
		if v, ok := d.Classify(ctx); ok {
			return v
		}
	}
	v, _ := UnknownDetector{}.Classify(ctx)
	return v
}
