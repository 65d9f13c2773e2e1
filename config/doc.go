// Package config loads a team definition from YAML and builds a runnable
// team from it.
//
// A definition names the models, the supervisor and its workers, plus the
// optional run ledger and NATS event stream:
//
//	models:
//	  gpt:
//	    provider: openai
//	    model: gpt-4o-mini
//	supervisor:
//	  name: supervisor
//	  model: gpt
//	  step_budget: 20
//	workers:
//	  - name: Researcher
//	    model: gpt
//	    tools: [read_transcript]
//	  - name: Writer
//	    model: gpt
//	store:
//	  path: data/teammesh.db
//
// Values of the form ${VAR} are expanded from the environment before
// parsing; TEAMMESH_* variables override selected settings afterwards.
package config
