package session

// Backend auth routes. The wider API surface is opaque to this module; only
// the session lifecycle endpoints are named here.
const (
	RouteLogin     = "/auth/user/login"
	RouteVerifyOTP = "/auth/user/verify-otp"
	RouteRefresh   = "/auth/user/refresh"
	RouteLogout    = "/auth/user/logout"
)
