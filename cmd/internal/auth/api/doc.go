// Package authapi exposes the session authority over HTTP.
//
//	POST   /auth/register   RegisterInput        -> token pair
//	POST   /auth/login      LoginInput           -> token pair
//	POST   /auth/refresh    {"refreshToken"}     -> access token
//	GET    /user/info       bearer               -> profile
//	PATCH  /user/update     bearer, ProfileInput -> profile
//	DELETE /user/delete     bearer               -> deletion receipt
//	GET    /presence        bearer               -> online users
//	GET    /presence/{id}   bearer               -> {id, online}
//
// Errors are {"error":{"code","message"}}.
package authapi
