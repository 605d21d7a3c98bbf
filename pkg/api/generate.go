package api

//go:generate oapi-codegen -package api -generate types,chi-server -o api.gen.go ../../api/openapi.yaml
