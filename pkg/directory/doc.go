// Package directory resolves user profiles, organization membership and
// subscription plans.
//
// Identity is owned by the external authentication provider; SQLDirectory
// reads the users and organization_members mirror tables that the provider
// sync maintains. CachedDirectory adds an expiring LRU for profiles only:
// membership and plans are read through on every call.
package directory
