package http

// X-M2M-* header names per spec.md §6's HTTP binding.
const (
	headerOrigin = "X-M2M-Origin"
	headerRI     = "X-M2M-RI"
	headerRVI    = "X-M2M-RVI"
	headerRET    = "X-M2M-RET"
	headerRST    = "X-M2M-RST"
	headerOET    = "X-M2M-OET"
	headerRTU    = "X-M2M-RTU"
	headerVSI    = "X-M2M-VSI"
	headerEC     = "X-M2M-EC"
	headerRSC    = "X-M2M-RSC"
)
