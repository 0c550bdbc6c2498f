// Package config loads the infraforge configuration and provides the CUE
// schemas and Starlark evaluator used by the workflow collaborators.
//
// # Configuration
//
// Load merges three sources, later ones winning:
//
//  1. Built-in defaults (Default)
//  2. A YAML file
//  3. INFRAFORGE_ environment variables, with "__" separating levels
//
// Provider API keys left empty are read from OPENAI_API_KEY,
// ANTHROPIC_API_KEY and INFRACOST_API_KEY. The result is checked with
// go-playground/validator struct tags.
//
//	workflow:
//	  max_retries: 5
//	  streak_threshold: 2
//	  run_timeout: 15m
//	llm:
//	  provider: openai
//	  lightweight_model: gpt-4o-mini
//	  standard_model: gpt-4o
//	tools:
//	  terraform_binary: terraform
//	  infracost_binary: infracost
//	policy:
//	  paths: [./policies]
//	  watch: true
//	completeness:
//	  rule_paths: [./rules]
//
// # Schemas
//
// SchemaRegistry holds CUE definitions for the JSON documents returned by the
// language model. The clarification and plan schemas are built in:
//
//	sr := config.NewSchemaRegistry()
//	if err := sr.ValidateJSON(ctx, config.SchemaPlan, raw); err != nil {
//	    // degrade to an empty plan
//	}
//
// # Starlark
//
// StarlarkEvaluator runs user rule files with a deadline. Inputs become
// predeclared globals and every global not starting with "_" is returned:
//
//	ev := config.NewStarlarkEvaluator(5 * time.Second)
//	res, err := ev.Evaluate(ctx, "eks.star", script, map[string]interface{}{
//	    "request":        request,
//	    "resource_types": counts,
//	})
//	missing := res.Output["missing"]
package config
