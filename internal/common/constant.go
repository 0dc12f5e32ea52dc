package common

// AuthorizationHeader carries the bearer access token on outbound requests.
const AuthorizationHeader = "Authorization"

// BearerPrefix precedes the token value in AuthorizationHeader.
const BearerPrefix = "Bearer "

// DeviceHeader identifies the sending device of a datawallet push.
const DeviceHeader = "X-Device-Id"

// DatawalletVersion is the payload format version written into every
// datawallet modification produced by this client.
const DatawalletVersion = 1
