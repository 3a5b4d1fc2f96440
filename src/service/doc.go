// Package service implements an HTTP API to query the state of a graphshare
// peer.
//
// The API is served by a chi router:
//
//  GET /stats    // statistics of the host and guest roles of the peer
//  GET /graph    // the sanitized graph: canonical on a host, mirror on a guest
//  GET /peers    // the guests of a host, or the host of a guest
//  GET /files/*  // on a guest, fetches an asset from the host
package service
