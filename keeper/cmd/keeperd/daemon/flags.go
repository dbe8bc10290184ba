package daemon

const (
	forceFlag             = "force"
	providerFlag          = "provider-address"
	contractFlag          = "contract-address"
	rpcAddressFlag        = "rpc-address"
	startSeqFlag          = "start-seq"
	chainLengthFlag       = "chain-length"
	sampleIntervalFlag    = "sample-interval"
	defaultChainLength    = 100_000
	defaultSampleInterval = 100
)
