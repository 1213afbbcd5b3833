// Package definition builds job trees from YAML suite definitions.
//
// A definition names a namespace and a root job. Group jobs use the kinds
// "sync" and "async" and list their children under jobs; every other kind
// names a function registered on a Registry, which receives the job's
// "with" block decoded into its argument type:
//
//	namespace: nightly
//	root:
//	  id: etl
//	  kind: sync
//	  jobs:
//	    - id: etl/extract
//	      kind: shell
//	      with:
//	        command: ./extract.sh
//	    - id: etl/load
//	      kind: async
//	      maxConcurrency: 2
//	      jobs:
//	        - {id: etl/load/users, kind: sleep, with: {duration: 30s}}
//	        - {id: etl/load/orders, kind: sleep, with: {duration: 45s}}
//
// NewRegistry comes with the builtin kinds "shell" and "sleep".
package definition
