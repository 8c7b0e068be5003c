package packet

// Server → client message identifiers. These values are the wire contract.
const (
	MsgMethodCreate     uint64 = 0
	MsgMethodDelete     uint64 = 1
	MsgSignalCreate     uint64 = 2
	MsgSignalDelete     uint64 = 3
	MsgEntityCreate     uint64 = 4
	MsgEntityUpdate     uint64 = 5
	MsgEntityDelete     uint64 = 6
	MsgPlotCreate       uint64 = 7
	MsgPlotUpdate       uint64 = 8
	MsgPlotDelete       uint64 = 9
	MsgBufferCreate     uint64 = 10
	MsgBufferDelete     uint64 = 11
	MsgBufferViewCreate uint64 = 12
	MsgBufferViewDelete uint64 = 13
	MsgMaterialCreate   uint64 = 14
	MsgMaterialUpdate   uint64 = 15
	MsgMaterialDelete   uint64 = 16
	MsgImageCreate      uint64 = 17
	MsgImageDelete      uint64 = 18
	MsgTextureCreate    uint64 = 19
	MsgTextureDelete    uint64 = 20
	MsgSamplerCreate    uint64 = 21
	MsgSamplerDelete    uint64 = 22
	MsgLightCreate      uint64 = 23
	MsgLightUpdate      uint64 = 24
	MsgLightDelete      uint64 = 25
	MsgGeometryCreate   uint64 = 26
	MsgGeometryDelete   uint64 = 27
	MsgTableCreate      uint64 = 28
	MsgTableUpdate      uint64 = 29
	MsgTableDelete      uint64 = 30

	MsgDocumentUpdate      uint64 = 31
	MsgDocumentReset       uint64 = 32
	MsgSignalInvoke        uint64 = 33
	MsgMethodReply         uint64 = 34
	MsgDocumentInitialized uint64 = 35
)

// Client → server message identifiers.
const (
	MsgIntroduction uint64 = 0
	MsgInvokeMethod uint64 = 1
)

// Collection names.
const (
	CollectionMethod     = "method"
	CollectionSignal     = "signal"
	CollectionEntity     = "entity"
	CollectionPlot       = "plot"
	CollectionBuffer     = "buffer"
	CollectionBufferView = "bufferview"
	CollectionMaterial   = "material"
	CollectionImage      = "image"
	CollectionTexture    = "texture"
	CollectionSampler    = "sampler"
	CollectionLight      = "light"
	CollectionGeometry   = "geometry"
	CollectionTable      = "table"
)

// IsDocumentMessage reports whether id is one of the document-level ids.
func IsDocumentMessage(id uint64) bool {
	return id >= MsgDocumentUpdate && id <= MsgDocumentInitialized
}
