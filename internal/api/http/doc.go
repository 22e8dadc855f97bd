// Package http exposes the document viewer pipeline over a REST API.
//
// Viewers are created, driven and torn down through /viewers; rendered
// pages are served as PNG. Classification and resolution are also
// reachable on their own through /classify and /resolve.
package http
