// Package oauthproxy implements the OAuthPassthrough: it proxies an
// upstream's /.well-known/oauth-* discovery documents so a local client's
// OAuth consent flow can resolve them through the gateway, and rewrites
// resource_metadata URLs (both in proxied GET bodies and in hoisted
// WWW-Authenticate headers) to point back at the local gateway. Grounded on
// the ResourceMetadataURL/AuthorizationServer wiring and CORS-enabled
// well-known-endpoint coverage this style of gateway carries, generalized
// from a single fixed upstream to a per-request scoped one.
package oauthproxy
