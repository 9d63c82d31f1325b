package pgtype

// Well-known OIDs for the built-in types pg_catalog assigns at initdb time.
// Custom types (and anything not listed here) are resolved at runtime via
// introspection.
const (
	OIDBool        uint32 = 16
	OIDBytea       uint32 = 17
	OIDChar        uint32 = 18
	OIDName        uint32 = 19
	OIDInt8        uint32 = 20
	OIDInt2        uint32 = 21
	OIDInt4        uint32 = 23
	OIDText        uint32 = 25
	OIDOID         uint32 = 26
	OIDXML         uint32 = 142
	OIDPoint       uint32 = 600
	OIDLseg        uint32 = 601
	OIDPath        uint32 = 602
	OIDBox         uint32 = 603
	OIDPolygon     uint32 = 604
	OIDLine        uint32 = 628
	OIDFloat4      uint32 = 700
	OIDFloat8      uint32 = 701
	OIDCircle      uint32 = 718
	OIDMoney       uint32 = 790
	OIDMacaddr     uint32 = 829
	OIDInet        uint32 = 869
	OIDCidr        uint32 = 650
	OIDBpchar      uint32 = 1042
	OIDVarchar     uint32 = 1043
	OIDDate        uint32 = 1082
	OIDTime        uint32 = 1083
	OIDTimestamp   uint32 = 1114
	OIDTimestamptz uint32 = 1184
	OIDInterval    uint32 = 1186
	OIDTimetz      uint32 = 1266
	OIDBit         uint32 = 1560
	OIDVarbit      uint32 = 1562
	OIDNumeric     uint32 = 1700
	OIDUUID        uint32 = 2950
	OIDJSON        uint32 = 114
	OIDJSONB       uint32 = 3802

	// Array OIDs of the above, for registering the built-in array codecs.
	OIDBoolArray        uint32 = 1000
	OIDInt2Array        uint32 = 1005
	OIDInt4Array        uint32 = 1007
	OIDTextArray        uint32 = 1009
	OIDInt8Array        uint32 = 1016
	OIDFloat4Array      uint32 = 1021
	OIDFloat8Array      uint32 = 1022
	OIDVarcharArray     uint32 = 1015
	OIDUUIDArray        uint32 = 2951
	OIDNumericArray     uint32 = 1231
	OIDJSONArray        uint32 = 199
	OIDJSONBArray       uint32 = 3807
	OIDTimestampArray   uint32 = 1115
	OIDTimestamptzArray uint32 = 1185
)
