package models

// DefaultUserID names the watchlist migrated from the single-user layout.
const DefaultUserID = "default"
